package message

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// maxSMSLength is the single-segment GSM limit; longer bodies get split
// by the carrier and billed twice, so they are rejected instead.
const maxSMSLength = 160

const stormWarning = "If winds exceed 35 mph, consider the Eruv down. "

// ErrMessageTooLong is returned when a composed alert cannot be shortened
// under the single-segment SMS limit.
var ErrMessageTooLong = errors.New("message exceeds 160 character limit")

// Greetings are rotated randomly to add variety and reduce the chance of
// carrier spam filtering.
var greetings = []string{"a great", "a wonderful", "an amazing", "a good"}

type Options struct {
	SkipCandleLighting bool
	SkipHavdalah       bool
	// DonateLinks maps city name to a fundraising link appended to that
	// city's alerts.
	DonateLinks map[string]string
	// HavdalahMins is the offset announced in the havdalah title; its
	// " (N min)" suffix is the first thing dropped when shortening.
	HavdalahMins int
}

// Composer builds the alert SMS body for one city.
type Composer struct {
	opts   Options
	logger zerolog.Logger
}

func NewComposer(opts Options, logger zerolog.Logger) *Composer {
	logger = logger.With().Str("component", "Composer").Logger()
	return &Composer{opts: opts, logger: logger}
}

// Compose builds the alert for a city whose eruv status changed. weather
// is optional; when present and stormy the message switches to the storm
// variant and drops the greeting.
func (c *Composer) Compose(
	city, status string,
	times models.ShabbatTimes,
	weather *models.WeatherData,
) (string, error) {
	prequel := " The "
	sequel := ""
	if weather != nil && weather.Stormy() {
		prequel = " As of now, the "
		sequel = stormWarning
	}

	candleLighting := times.CandleLighting
	if c.opts.SkipCandleLighting {
		candleLighting = ""
	}

	havdalah := ""
	if times.Havdalah != "" && !c.opts.SkipHavdalah {
		havdalah = times.Havdalah + ". "
	}

	closing := "."
	if sequel == "" {
		holiday := ""
		if times.Holiday {
			holiday = " and Yom Tov"
		}
		closing = "Have " + greetings[rand.Intn(len(greetings))] + " Shabbos" + holiday + "!"
	}

	body := times.Parsha + prequel + city + " Eruv is " + status + ". " +
		sequel + candleLighting + ". " + havdalah + closing

	body, err := c.shorten(body)
	if err != nil {
		c.logger.Error().
			Str("city", city).
			Int("length", len(body)).
			Str("body", body).
			Msg("composed message exceeds SMS limit")
		return "", fmt.Errorf("composing alert for %s: %w", city, err)
	}

	if link, ok := c.opts.DonateLinks[city]; ok {
		body += " Please visit " + link + " to cover the costs."
	}

	return body, nil
}

// shorten drops the havdalah offset suffix when the body runs over the
// SMS limit, then gives up.
func (c *Composer) shorten(body string) (string, error) {
	if len(body) <= maxSMSLength {
		return body, nil
	}

	suffix := fmt.Sprintf(" (%d min)", c.opts.HavdalahMins)
	if strings.Contains(body, suffix) {
		return c.shorten(strings.Replace(body, suffix, "", 1))
	}

	return body, ErrMessageTooLong
}
