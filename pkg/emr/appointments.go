package emr

import (
	"fmt"
	"strings"
)

// Home schedule locators. Each provider column carries its appointment
// entries; entry metadata rides on data attributes.
const (
	locScheduleColumns = "xpath=//td[contains(@class,'scheduleColumn')]"
	locProviderName    = ".providerName"
	locAppointmentItem = ".apptItem"
)

// Appointment is one scraped schedule entry.
type Appointment struct {
	ChartNumber string
	Name        string
	Type        string
	Reason      string
	Notes       string
	Time        string
	Status      string
}

// terminalStatuses are excluded at scan time, not retained and filtered
// later.
var terminalStatuses = []string{"cancelled", "completed", "rescheduled"}

func isTerminalStatus(status string) bool {
	lower := strings.ToLower(status)
	for _, t := range terminalStatuses {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// ScanAppointments scrapes the home schedule view into per-provider
// appointment lists. Entries whose status is terminal are dropped
// during the scan. The result is cached for Appointments.
func (c *Controller) ScanAppointments() (map[string][]Appointment, error) {
	home, ok := c.registry.Handle(ContextHome)
	if !ok {
		return nil, fmt.Errorf("%w: home context gone", ErrContextLost)
	}
	if err := c.surface.SwitchTo(home); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextLost, err)
	}

	columns, err := c.surface.FindAll(home, locScheduleColumns)
	if err != nil {
		return nil, err
	}

	schedule := make(map[string][]Appointment)
	for _, column := range columns {
		providerEl, err := column.Find(locProviderName)
		if err != nil {
			c.log.Debugf("schedule column without provider header, skipped")
			continue
		}
		provider, err := providerEl.Text()
		if err != nil {
			continue
		}
		provider = strings.TrimSpace(provider)
		if provider == "" {
			continue
		}

		items, err := column.FindAll(locAppointmentItem)
		if err != nil {
			continue
		}
		for _, item := range items {
			appt, ok := readAppointment(item)
			if !ok {
				c.log.Warnf("unreadable appointment entry for %s, skipped", provider)
				continue
			}
			if isTerminalStatus(appt.Status) {
				continue
			}
			schedule[provider] = append(schedule[provider], appt)
		}
	}

	c.appointments = schedule
	c.log.Infof("scanned schedule: %d providers", len(schedule))
	return schedule, nil
}

// Appointments returns the schedule cached by the last scan (the scan
// runs automatically at start and after every restart).
func (c *Controller) Appointments() map[string][]Appointment {
	return c.appointments
}

func readAppointment(item Element) (Appointment, bool) {
	attr := func(name string) string {
		v, err := item.Attribute(name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}

	appt := Appointment{
		ChartNumber: attr("data-chart"),
		Name:        attr("data-name"),
		Type:        attr("data-type"),
		Reason:      attr("data-reason"),
		Notes:       attr("data-notes"),
		Time:        attr("data-time"),
		Status:      attr("data-status"),
	}
	if appt.Name == "" && appt.ChartNumber == "" {
		return Appointment{}, false
	}
	return appt, true
}
