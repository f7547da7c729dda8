package emr

import (
	"reflect"
	"testing"
)

func formItem(name string, action string) *fakeElement {
	return newFakeElement(name).withAttr("onclick", action)
}

// bindEncounter adds an encounter context to a started controller and
// registers it, skipping the search cascade.
func bindEncounter(t *testing.T, c *Controller, surface *fakeSurface, enc *fakeContext) Handle {
	t.Helper()
	h := surface.addContext(enc)
	c.registry.Bind(ContextEncounter, h)
	return h
}

func TestFindForms(t *testing.T) {
	t.Run("keeps duplicates newest first", func(t *testing.T) {
		surface := newFakeSurface()
		surface.addContext(loginContext())
		c := newTestController(t, surface, nil)

		enc := newFakeContext()
		enc.add(locFormsExpander, newFakeElement("+"))
		enc.add(locFormsItems,
			formItem("Intake Form", "openForm('fdid=5')"),
			formItem("Intake Form", "openForm('fdid=3')"),
			formItem("Intake Form", "openForm('fdid=3')"),
			formItem("Consult Letter", "openForm('fdid=9')"),
			formItem("Intake Form", "openForm('fdid=1')"),
		)
		bindEncounter(t, c, surface, enc)

		forms, err := c.FindForms()
		if err != nil {
			t.Fatalf("FindForms: %v", err)
		}
		if got := forms.Get("Intake Form"); !reflect.DeepEqual(got, []int{5, 3, 3, 1}) {
			t.Fatalf("Intake Form ids = %v, want [5 3 3 1]", got)
		}
		if got := forms.Names(); !reflect.DeepEqual(got, []string{"Intake Form", "Consult Letter"}) {
			t.Fatalf("names = %v, want first-seen order", got)
		}
	})

	t.Run("malformed items are skipped", func(t *testing.T) {
		surface := newFakeSurface()
		surface.addContext(loginContext())
		c := newTestController(t, surface, nil)

		enc := newFakeContext()
		enc.add(locFormsItems,
			formItem("Good", "openForm('fdid=7')"),
			newFakeElement("No Action"),
			formItem("Bad Action", "openForm('oops')"),
		)
		bindEncounter(t, c, surface, enc)

		forms, err := c.FindForms()
		if err != nil {
			t.Fatalf("FindForms: %v", err)
		}
		if forms.Len() != 1 {
			t.Fatalf("indexed %d names, want 1", forms.Len())
		}
		if got := forms.Get("Good"); !reflect.DeepEqual(got, []int{7}) {
			t.Fatalf("Good ids = %v", got)
		}
	})

	t.Run("missing expander is not fatal", func(t *testing.T) {
		surface := newFakeSurface()
		surface.addContext(loginContext())
		c := newTestController(t, surface, nil)

		enc := newFakeContext()
		enc.add(locFormsItems, formItem("Solo", "openForm('fdid=2')"))
		bindEncounter(t, c, surface, enc)

		forms, err := c.FindForms()
		if err != nil {
			t.Fatalf("FindForms: %v", err)
		}
		if forms.Len() != 1 {
			t.Fatalf("indexed %d names, want 1", forms.Len())
		}
	})
}

func TestFindDocuments(t *testing.T) {
	surface := newFakeSurface()
	surface.addContext(loginContext())
	c := newTestController(t, surface, nil)

	enc := newFakeContext()
	enc.add(locDocsExpander, newFakeElement("+"))
	enc.add(locDocsItems,
		formItem("scan_0012.pdf", "viewDoc('segmentID=12')"),
		formItem("scan_0011.pdf", "viewDoc('segmentID=11')"),
	)
	bindEncounter(t, c, surface, enc)

	// No side channel seeded here, so raw display names stand.
	c.httpClient = nil

	docs, err := c.FindDocuments()
	if err != nil {
		t.Fatalf("FindDocuments: %v", err)
	}
	if got := docs.Names(); !reflect.DeepEqual(got, []string{"scan_0012.pdf", "scan_0011.pdf"}) {
		t.Fatalf("names = %v", got)
	}
	if got := docs.Get("scan_0012.pdf"); !reflect.DeepEqual(got, []int{12}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestRecordIndex(t *testing.T) {
	idx := NewRecordIndex()
	idx.Add("A", 3)
	idx.Add("B", 2)
	idx.Add("A", 1)

	if !reflect.DeepEqual(idx.Names(), []string{"A", "B"}) {
		t.Fatalf("names = %v", idx.Names())
	}
	if !reflect.DeepEqual(idx.Get("A"), []int{3, 1}) {
		t.Fatalf("A ids = %v", idx.Get("A"))
	}

	m := idx.Map()
	m["A"][0] = 99
	if idx.Get("A")[0] != 3 {
		t.Fatal("Map shares backing storage with the index")
	}
}

func TestOpenEncounterRequiresPatient(t *testing.T) {
	surface := newFakeSurface()
	surface.addContext(loginContext())
	c := newTestController(t, surface, nil)

	if err := c.OpenEncounter(); err != ErrNoPatient {
		t.Fatalf("OpenEncounter without patient = %v, want ErrNoPatient", err)
	}
}
