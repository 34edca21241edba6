package models

// ShabbatTimes holds the per-zip items extracted from the Hebcal feed.
// Havdalah may be empty (no entry for the coming Shabbat). When no parsha
// is listed the week is a holiday and Parsha carries the holiday greeting.
type ShabbatTimes struct {
	CandleLighting string
	Havdalah       string
	Parsha         string
	Holiday        bool
}
