package emr

import (
	"testing"
)

func apptItem(chart, name, status string) *fakeElement {
	return newFakeElement("").
		withAttr("data-chart", chart).
		withAttr("data-name", name).
		withAttr("data-status", status).
		withAttr("data-time", "09:00")
}

func TestScanAppointments(t *testing.T) {
	surface := newFakeSurface()
	home := loginContext()

	smith := newFakeElement("")
	smith.withChild(locProviderName, newFakeElement("Dr. Smith"))
	smith.withChild(locAppointmentItem, apptItem("100", "Jane Roe", "Booked"))
	smith.withChild(locAppointmentItem, apptItem("101", "John Doe", "Cancelled"))
	smith.withChild(locAppointmentItem, apptItem("102", "Ann Lee", "Completed"))
	smith.withChild(locAppointmentItem, apptItem("103", "Bob Ray", "Rescheduled"))
	smith.withChild(locAppointmentItem, apptItem("104", "Sue Kim", "arrived"))

	jones := newFakeElement("")
	jones.withChild(locProviderName, newFakeElement("Dr. Jones"))
	jones.withChild(locAppointmentItem, newFakeElement("")) // no metadata at all

	headerless := newFakeElement("")
	headerless.withChild(locAppointmentItem, apptItem("105", "Lost Column", "Booked"))

	home.add(locScheduleColumns, smith, jones, headerless)
	surface.addContext(home)

	c := newTestController(t, surface, nil)

	schedule := c.Appointments()
	if len(schedule) != 1 {
		t.Fatalf("schedule has %d providers, want 1", len(schedule))
	}

	appts := schedule["Dr. Smith"]
	if len(appts) != 2 {
		t.Fatalf("Dr. Smith has %d appointments, want terminal statuses dropped: %+v", len(appts), appts)
	}
	if appts[0].Name != "Jane Roe" || appts[1].Name != "Sue Kim" {
		t.Fatalf("kept appointments = %+v", appts)
	}
	if appts[0].ChartNumber != "100" || appts[0].Time != "09:00" {
		t.Fatalf("appointment metadata not read: %+v", appts[0])
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for status, terminal := range map[string]bool{
		"Cancelled":          true,
		"completed (billed)": true,
		"Rescheduled":        true,
		"Booked":             false,
		"arrived":            false,
		"":                   false,
	} {
		if got := isTerminalStatus(status); got != terminal {
			t.Errorf("isTerminalStatus(%q) = %v, want %v", status, got, terminal)
		}
	}
}
