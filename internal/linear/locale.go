package linear

import (
	"time"

	"golang.org/x/text/language"
)

type names struct {
	shortMonths [12]string
	longMonths  [12]string
	weekdays    [7]string // indexed by time.Weekday
}

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

var tables = []names{
	{
		shortMonths: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		longMonths: [12]string{"January", "February", "March", "April", "May", "June", "July",
			"August", "September", "October", "November", "December"},
		weekdays: [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	},
	{
		shortMonths: [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."},
		longMonths: [12]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet",
			"août", "septembre", "octobre", "novembre", "décembre"},
		weekdays: [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."},
	},
}

// namesFor picks the closest supported language for a BCP 47 locale such as
// "fr-CA". Unparseable locales fall back to English.
func namesFor(locale string) names {
	tag, err := language.Parse(locale)
	if err != nil {
		return tables[0]
	}
	_, idx, _ := matcher.Match(tag)
	return tables[idx]
}

func (n names) month(m time.Month, format string) string {
	if format == "long" {
		return n.longMonths[m-1]
	}
	return n.shortMonths[m-1]
}
