package stub

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Entry is one canned answer.
type Entry struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

type FAQ struct {
	Entries  []Entry `yaml:"entries"`
	Fallback string  `yaml:"fallback"`
}

const defaultFallback = "I could not find anything about that in the knowledge base. Please contact the IT service desk."

// DefaultFAQ is served when no file is given.
func DefaultFAQ() *FAQ {
	return &FAQ{
		Fallback: defaultFallback,
		Entries: []Entry{
			{
				ID:       "faq:router-reset",
				Keywords: []string{"router", "wifi", "wlan", "internet"},
				Answer:   "Try restarting your router.",
			},
			{
				ID:       "faq:password-reset",
				Keywords: []string{"password", "passwort", "login", "reset", "account"},
				Answer:   "You can reset your password from the self-service portal. If your account is locked, contact the service desk.",
			},
			{
				ID:       "faq:vpn",
				Keywords: []string{"vpn", "remote", "tunnel"},
				Answer:   "Make sure the VPN client is up to date, then reconnect using your company credentials.",
			},
			{
				ID:       "faq:printer",
				Keywords: []string{"printer", "print", "drucker"},
				Answer:   "Check that the printer is online and that you selected the right queue. Restarting the print spooler often helps.",
			},
		},
	}
}

// LoadFAQ reads a YAML knowledge file.
func LoadFAQ(path string) (*FAQ, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read faq file %s", path)
	}
	faq := &FAQ{}
	if err := yaml.Unmarshal(b, faq); err != nil {
		return nil, errors.Wrapf(err, "failed to parse faq file %s", path)
	}
	if len(faq.Entries) == 0 {
		return nil, errors.Errorf("faq file %s has no entries", path)
	}
	for i, e := range faq.Entries {
		if e.ID == "" || e.Answer == "" {
			return nil, errors.Errorf("faq entry %d needs an id and an answer", i)
		}
	}
	if faq.Fallback == "" {
		faq.Fallback = defaultFallback
	}
	return faq, nil
}

// Match returns the entry sharing the most keywords with query.
func (f *FAQ) Match(query string) (Entry, bool) {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	seen := map[string]bool{}
	for _, w := range words {
		seen[w] = true
	}

	best, bestScore := Entry{}, 0
	for _, e := range f.Entries {
		score := 0
		for _, k := range e.Keywords {
			if seen[strings.ToLower(k)] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	return best, bestScore > 0
}
