package converter

import (
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/relvacode/iso8601"

	"github.com/jiraexport/jiraexport-go/internal/config"
)

const (
	isoLayout   = "2006-01-02T15:04:05.000Z07:00"
	localLayout = "1/2/2006, 3:04:05 PM"
)

// dateTokens maps the supported custom layout tokens to strftime verbs.
var dateTokens = []struct {
	token string
	verb  string
}{
	{"YYYY", "%Y"},
	{"MM", "%m"},
	{"DD", "%d"},
	{"HH", "%H"},
	{"mm", "%M"},
	{"ss", "%S"},
}

// compileDateLayout translates a layout like "YYYY-MM-DD HH:mm" into a strftime pattern.
// The layout is scanned once from left to right, so text produced for one token
// is never re-read as another token and literal '%' is preserved.
func compileDateLayout(layout string) (*strftime.Strftime, error) {
	var sb strings.Builder
	for i := 0; i < len(layout); {
		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(layout[i:], t.token) {
				sb.WriteString(t.verb)
				i += len(t.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if layout[i] == '%' {
			sb.WriteString("%%")
		} else {
			sb.WriteByte(layout[i])
		}
		i++
	}
	return strftime.New(sb.String())
}

// dateFormatter renders Jira timestamps according to the export options.
type dateFormatter struct {
	format   config.DateFormat
	custom   *strftime.Strftime
	location *time.Location
}

func newDateFormatter(format config.DateFormat, customLayout string, location *time.Location) (*dateFormatter, error) {
	f := &dateFormatter{format: format, location: location}
	if f.location == nil {
		f.location = time.Local
	}
	if format == config.DateFormatCustom && customLayout != "" {
		custom, err := compileDateLayout(customLayout)
		if err != nil {
			return nil, err
		}
		f.custom = custom
	}
	return f, nil
}

// Format parses an ISO 8601 timestamp and renders it.
// Empty or unparsable input yields an empty string.
func (f *dateFormatter) Format(value string) string {
	if value == "" {
		return ""
	}
	t, err := iso8601.ParseString(value)
	if err != nil {
		return ""
	}

	switch f.format {
	case config.DateFormatLocal:
		return t.In(f.location).Format(localLayout)
	case config.DateFormatCustom:
		if f.custom == nil {
			return t.In(f.location).Format(localLayout)
		}
		return f.custom.FormatString(t.In(f.location))
	default:
		return t.UTC().Format(isoLayout)
	}
}
