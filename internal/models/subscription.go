package models

// Subscriber is one row of the Subscribers worksheet. A subscriber may
// follow several cities, entered as a comma-separated list in the sheet.
type Subscriber struct {
	Phone  string
	Cities []string
}

// Community is one row of the Communities worksheet and carries the zip
// code used for candle-lighting and weather lookups for its city.
type Community struct {
	Contact string
	City    string
	ZipCode string
}

// CityStatus is one row of the Status worksheet. Status is the current
// eruv status, LastNotified the status subscribers were last told about.
// Row is the 1-based sheet row, kept so the write-back can address the
// LastNotified cell.
type CityStatus struct {
	Row          int
	City         string
	Status       string
	LastNotified string
}

// StatusPending marks a city whose eruv has no checked status yet; such
// rows are skipped by the alert pass.
const StatusPending = "Pending"

// Changed reports whether subscribers need to be alerted about this city.
func (c CityStatus) Changed() bool {
	return c.Status != c.LastNotified
}
