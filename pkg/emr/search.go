package emr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Search context locators.
const (
	locSearchButton  = "xpath=//*[@id='search']"
	locSearchMode    = "xpath=//*[@class='wideInput']"
	locSearchInput   = "xpath=//*[@class='searchBox']/ul/li[2]/input"
	locSearchSubmit  = "xpath=//*[@class='searchBox']/ul/li[3]/input[9]"
	locSearchResults = "xpath=//*[@id='searchResults']/table/tbody"

	searchModeChart = "search_demographic_no"
	searchModeName  = "search_name"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// SearchOptions controls which contexts a successful search cascades
// into opening. The flags are independent; OpenFormLibrary opens the
// encounter on its own when that context is needed.
type SearchOptions struct {
	OpenEncounter   bool
	OpenFormLibrary bool
}

// DefaultSearchOptions opens both the encounter and the form library.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{OpenEncounter: true, OpenFormLibrary: true}
}

// SearchPatient resolves a patient by chart number (preferred when
// supplied) or "last, first" name and makes them current. Exactly one
// result row is a success; zero rows return (false, nil) and multiple
// rows return (false, ErrAmbiguousResult) for the caller to narrow.
func (c *Controller) SearchPatient(first, last, chartNo string) (bool, error) {
	return c.SearchPatientWith(first, last, chartNo, DefaultSearchOptions())
}

// SearchPatientWith is SearchPatient with explicit cascade control.
// The whole sequence is retried once if the search context could not be
// created, covering a home context that died between the EnsureHome
// check and the click.
func (c *Controller) SearchPatientWith(first, last, chartNo string, opts SearchOptions) (bool, error) {
	const attempts = 2

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := c.searchPatientOnce(first, last, chartNo, opts)
		if err == nil {
			return ok, nil
		}
		if !retryableSearchErr(err) {
			return false, err
		}
		lastErr = err
		c.log.Warnf("patient search attempt %d/%d failed: %v", attempt, attempts, err)
		c.registry.Forget(ContextSearch)
	}
	return false, fmt.Errorf("patient search failed after %d attempts: %w", attempts, lastErr)
}

func retryableSearchErr(err error) bool {
	// Ambiguity is a caller problem and a dead connection already
	// survived a restart; anything else was a context/element failure
	// worth one more attempt.
	return !errors.Is(err, ErrAmbiguousResult) && !errors.Is(err, ErrConnection)
}

func (c *Controller) searchPatientOnce(first, last, chartNo string, opts SearchOptions) (bool, error) {
	if !c.EnsureHome() {
		return false, fmt.Errorf("%w: home context unreachable", ErrConnection)
	}

	// Contexts left over from the previous patient are that patient's;
	// close before rebinding.
	c.registry.Close(ContextEncounter)
	c.registry.Close(ContextFormLibrary)
	c.patient = nil

	home, _ := c.registry.Handle(ContextHome)
	sh, err := c.registry.Open(ContextSearch, func() error {
		if err := c.surface.SwitchTo(home); err != nil {
			return err
		}
		btn, err := c.surface.Find(home, locSearchButton)
		if err != nil {
			return err
		}
		return btn.Click()
	})
	if err != nil {
		return false, err
	}

	mode, err := c.surface.Find(sh, locSearchMode)
	if err != nil {
		return false, err
	}
	input, err := c.surface.Find(sh, locSearchInput)
	if err != nil {
		return false, err
	}

	query := chartNo
	modeValue := searchModeChart
	if chartNo == "" {
		query = fmt.Sprintf("%s, %s", last, first)
		modeValue = searchModeName
	}
	if err := mode.SelectOption(modeValue); err != nil {
		return false, err
	}
	if err := input.Fill(query); err != nil {
		return false, err
	}

	submit, err := c.surface.Find(sh, locSearchSubmit)
	if err != nil {
		return false, err
	}
	if err := submit.Click(); err != nil {
		return false, err
	}

	table, err := c.surface.WaitVisible(sh, locSearchResults, c.cfg.Wait())
	if err != nil {
		return false, err
	}
	rows, err := table.FindAll("tr")
	if err != nil {
		return false, err
	}

	// The first row is the table header.
	switch dataRows := len(rows) - 1; {
	case dataRows <= 0:
		c.log.Infof("no patients found for %q", query)
		return false, nil

	case dataRows == 1:
		row := rows[1]
		c.patient = &Patient{
			FirstName:   first,
			LastName:    last,
			ChartNumber: chartNo,
			row:         row,
		}
		if chartNo == "" {
			c.patient.ChartNumber = chartNumberFromRow(row)
		}
		c.log.Infof("found patient %s %s (chart %s)", first, last, c.patient.ChartNumber)

		if opts.OpenEncounter {
			if err := c.OpenEncounter(); err != nil {
				c.log.Warnf("could not open encounter after search: %v", err)
			}
		}
		if opts.OpenFormLibrary {
			// OpenFormLibrary opens the encounter itself when needed, so
			// this does not depend on the OpenEncounter flag.
			if err := c.OpenFormLibrary(); err != nil {
				c.log.Warnf("could not open form library after search: %v", err)
			}
		}
		return true, nil

	default:
		c.log.Infof("ambiguous search for %q: %d results", query, dataRows)
		return false, fmt.Errorf("%w: %d results", ErrAmbiguousResult, dataRows)
	}
}

// chartNumberFromRow pulls the demographic number out of a result row,
// taking the first all-digit cell.
func chartNumberFromRow(row Element) string {
	cells, err := row.FindAll("td")
	if err != nil {
		return ""
	}
	for _, cell := range cells {
		text, err := cell.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if digitsOnly.MatchString(text) {
			return text
		}
	}
	return ""
}
