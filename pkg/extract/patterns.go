package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Patterns is the declarative rule table of the extraction engine. Cues and
// markers are literal words; run classes are regexp character class bodies.
type Patterns struct {
	// CurrencyMarkers precede the amount ("Rs.", "INR", "₹"). Longer markers must
	// come before their prefixes.
	CurrencyMarkers []string
	// AmountLiteral matches the numeric run after a marker, grouping commas included.
	AmountLiteral string

	// ReceiverCues introduce the counterparty, tried in order at each position.
	ReceiverCues []string
	// ReceiverRun is the character class of a receiver name.
	ReceiverRun string
	// ReceiverStops are the words that end a receiver name.
	ReceiverStops []string
	// AccountSuffixes start a trailing account reference dropped from a receiver.
	AccountSuffixes []string

	// SenderCues introduce the originating party.
	SenderCues []string
	// SenderRun is the character class of a sender name.
	SenderRun string
	// SenderStops are the words that end a sender name.
	SenderStops []string
}

// DefaultPatterns returns the rule table for common Indian bank and UPI alerts.
func DefaultPatterns() Patterns {
	return Patterns{
		CurrencyMarkers: []string{"Rs.", "Rs", "INR", "₹"},
		AmountLiteral:   `[\d,]+\.?\d*`,

		ReceiverCues:    []string{"paid to", "sent to", "to", "at"},
		ReceiverRun:     `A-Za-z0-9\s\x{00a0}@.`,
		ReceiverStops:   []string{"on", "via", "using", "from", "for"},
		AccountSuffixes: []string{"a/c", "account"},

		SenderCues:  []string{"from", "by"},
		SenderRun:   `A-Za-z0-9\s\x{00a0}/*`,
		SenderStops: []string{"on", "to", "for"},
	}
}

// space matches whitespace including the no-break space some senders use
// between words.
const space = `[\s\x{00a0}]`

// compiled holds the regular expressions built from a Patterns table.
type compiled struct {
	amount        *regexp.Regexp
	receiver      *regexp.Regexp
	accountSuffix *regexp.Regexp
	sender        *regexp.Regexp
}

func (p Patterns) compile() (*compiled, error) {
	if len(p.CurrencyMarkers) == 0 || p.AmountLiteral == "" {
		return nil, fmt.Errorf("amount rule needs currency markers and an amount literal")
	}
	if len(p.ReceiverCues) == 0 || p.ReceiverRun == "" {
		return nil, fmt.Errorf("receiver rule needs cues and a run class")
	}
	if len(p.SenderCues) == 0 || p.SenderRun == "" {
		return nil, fmt.Errorf("sender rule needs cues and a run class")
	}

	var (
		c   compiled
		err error
	)

	c.amount, err = regexp.Compile(fmt.Sprintf(`(?i)(?:%s)%s*(%s)`, alternation(p.CurrencyMarkers), space, p.AmountLiteral))
	if err != nil {
		return nil, fmt.Errorf("compiling amount rule: %w", err)
	}

	c.receiver, err = regexp.Compile(counterparty(p.ReceiverCues, p.ReceiverRun, p.ReceiverStops))
	if err != nil {
		return nil, fmt.Errorf("compiling receiver rule: %w", err)
	}

	if len(p.AccountSuffixes) > 0 {
		c.accountSuffix, err = regexp.Compile(fmt.Sprintf(`(?i)%s+(?:%s).*$`, space, alternation(p.AccountSuffixes)))
		if err != nil {
			return nil, fmt.Errorf("compiling account suffix rule: %w", err)
		}
	}

	c.sender, err = regexp.Compile(counterparty(p.SenderCues, p.SenderRun, p.SenderStops))
	if err != nil {
		return nil, fmt.Errorf("compiling sender rule: %w", err)
	}

	return &c, nil
}

// counterparty builds "<cue> <lazy run> <boundary>" where the boundary is a stop
// word after whitespace, the end of the text, a period or a comma.
func counterparty(cues []string, run string, stops []string) string {
	boundary := `$|\.|,`
	if len(stops) > 0 {
		boundary = fmt.Sprintf(`%s+(?:%s)|%s`, space, alternation(stops), boundary)
	}
	return fmt.Sprintf(`(?i)(?:%s)%s+([%s]+?)(?:%s)`, alternation(cues), space, run, boundary)
}

// alternation quotes words for a regexp group. A space inside a word matches
// any run of whitespace.
func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(w), " ", space+"+"))
	}
	return strings.Join(quoted, "|")
}
