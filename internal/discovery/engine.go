// Package discovery scans parsed evidence for significance-ranked findings:
// keyword hits in communications, activity on case-critical dates, stored
// credentials, suspicious searches, and contacts shared across devices.
package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/config"
	"github.com/scrypster/casefile/pkg/types"
)

// Search queries matching any of the profile's suspicious phrases or terms
// are always top-tier.
const suspiciousFlames = 3

// DeviceRecords is one device's worth of parsed records plus its owner
// display name.
type DeviceRecords struct {
	DeviceID string
	Owner    string
	Records  []types.Record
}

type keyTerm struct {
	term   string
	lower  string
	flames int
}

type criticalDate struct {
	date   string
	label  string
	flames int
}

// Engine evaluates records against one case profile. The scan is
// deterministic: identical input produces identical discoveries, including
// identifiers, so re-indexing never churns stored findings.
type Engine struct {
	profile   *config.CaseProfile
	terms     []keyTerm
	dates     []criticalDate
	keyPeople []string
	phrases   []string
	termRes   []*regexp.Regexp
	log       *logrus.Entry
}

// NewEngine builds an Engine from a case profile. Key terms are ordered by
// descending tier so the most significant match leads titles and tags.
func NewEngine(profile *config.CaseProfile) (*Engine, error) {
	e := &Engine{
		profile: profile,
		log:     logrus.WithField("component", "discovery"),
	}

	for term, flames := range profile.KeywordTiers {
		e.terms = append(e.terms, keyTerm{term: term, lower: strings.ToLower(term), flames: flames})
	}
	sort.Slice(e.terms, func(i, j int) bool {
		if e.terms[i].flames != e.terms[j].flames {
			return e.terms[i].flames > e.terms[j].flames
		}
		return e.terms[i].term < e.terms[j].term
	})

	for date, cd := range profile.CriticalDates {
		e.dates = append(e.dates, criticalDate{date: date, label: cd.Label, flames: cd.Flames})
	}
	sort.Slice(e.dates, func(i, j int) bool { return e.dates[i].date < e.dates[j].date })

	for _, kp := range profile.KeyPeople {
		e.keyPeople = append(e.keyPeople, strings.ToLower(kp))
	}
	e.phrases = append(e.phrases, profile.SuspiciousPhrases...)

	for _, term := range profile.SuspiciousTerms {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(term)) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("discovery: bad suspicious term %q: %w", term, err)
		}
		e.termRes = append(e.termRes, re)
	}

	return e, nil
}

// Scan evaluates every device's records and returns the verified findings
// followed by the deduplicated scan results.
func (e *Engine) Scan(devices []DeviceRecords) []types.Discovery {
	var found []types.Discovery

	for _, dev := range devices {
		owner := dev.Owner
		if owner == "" {
			owner = dev.DeviceID
		}

		byCat := map[types.Category][]types.Record{}
		for _, r := range dev.Records {
			byCat[r.Category] = append(byCat[r.Category], r)
		}

		found = append(found, e.scanChats(dev.DeviceID, owner, byCat[types.CategoryChats])...)
		found = append(found, e.scanEmails(dev.DeviceID, owner, byCat[types.CategoryEmails])...)
		found = append(found, e.scanSearches(dev.DeviceID, owner, byCat[types.CategorySearches])...)
		found = append(found, e.scanPasswords(dev.DeviceID, owner, byCat[types.CategoryPasswords])...)
		found = append(found, e.scanLocations(dev.DeviceID, owner, byCat[types.CategoryLocations])...)
		found = append(found, e.scanCalls(dev.DeviceID, owner, byCat[types.CategoryCalls])...)
		found = append(found, e.scanBrowsing(dev.DeviceID, owner, byCat[types.CategoryBrowsing])...)
	}

	found = append(found, e.scanCrossDevice(devices)...)
	found = deduplicate(found)

	out := e.profile.VerifiedDiscoveries()
	out = append(out, found...)

	e.log.WithFields(logrus.Fields{
		"devices":     len(devices),
		"discoveries": len(out),
	}).Info("discovery scan complete")
	return out
}

// matchTerms returns the matched key terms ordered by significance and the
// highest tier among them. skipShortAppNames suppresses matches on messaging
// app names when the text is too short to be more than attribution.
func (e *Engine) matchTerms(lower string, textLen int, skipShortAppNames bool) ([]string, int) {
	var matched []string
	maxFlames := 0
	for _, t := range e.terms {
		if !strings.Contains(lower, t.lower) {
			continue
		}
		if skipShortAppNames && (t.lower == "signal" || t.lower == "telegram") && textLen < 30 {
			continue
		}
		matched = append(matched, t.term)
		if t.flames > maxFlames {
			maxFlames = t.flames
		}
	}
	return matched, maxFlames
}

func (e *Engine) matchDate(ts string) (criticalDate, bool) {
	if ts == "" {
		return criticalDate{}, false
	}
	for _, cd := range e.dates {
		if strings.HasPrefix(ts, cd.date) {
			return cd, true
		}
	}
	return criticalDate{}, false
}

func (e *Engine) scanChats(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		msg, ok := r.Payload.(types.ChatMessage)
		if !ok || len(msg.Body) < 5 {
			continue
		}

		matched, flames := e.matchTerms(strings.ToLower(msg.Body), len(msg.Body), true)
		if len(matched) > 0 && flames >= 2 {
			out = append(out, types.Discovery{
				ID:        discoveryID("chat", deviceID, msg.Time, msg.Sender, msg.Body),
				Title:     fmt.Sprintf("%s: Message mentioning %s", owner, strings.Join(head(matched, 3), ", ")),
				Category:  types.DiscoveryCommunications,
				Flames:    flames,
				DeviceID:  deviceID,
				Owner:     owner,
				Content:   clip(msg.Body, 500),
				Timestamp: msg.Time,
				Tags:      head(matched, 5),
				DataType:  types.CategoryChats,
				SourceApp: msg.SourceApp,
			})
		}

		if cd, ok := e.matchDate(msg.Time); ok {
			out = append(out, types.Discovery{
				ID:        discoveryID("date", deviceID, msg.Time, msg.Sender, msg.Body),
				Title:     fmt.Sprintf("%s: Message on %s (%s)", owner, cd.label, cd.date),
				Category:  types.DiscoveryCommunications,
				Flames:    cd.flames,
				DeviceID:  deviceID,
				Owner:     owner,
				Content:   clip(msg.Body, 500),
				Timestamp: msg.Time,
				Tags:      []string{cd.label, cd.date},
				DataType:  types.CategoryChats,
				SourceApp: msg.SourceApp,
			})
		}
	}
	return out
}

func (e *Engine) scanEmails(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		email, ok := r.Payload.(types.EmailMessage)
		if !ok {
			continue
		}
		text := strings.ToLower(email.Subject + " " + email.Preview)

		matched, flames := e.matchTerms(text, len(text), false)
		if len(matched) == 0 || flames < 2 {
			continue
		}
		out = append(out, types.Discovery{
			ID:        discoveryID("email", deviceID, email.Time, email.Subject, email.Preview),
			Title:     fmt.Sprintf("%s: Email — %s", owner, clip(email.Subject, 80)),
			Category:  types.DiscoveryCommunications,
			Flames:    flames,
			DeviceID:  deviceID,
			Owner:     owner,
			Content:   fmt.Sprintf("Subject: %s\n%s", email.Subject, clip(email.Preview, 400)),
			Timestamp: email.Time,
			Tags:      head(matched, 5),
			DataType:  types.CategoryEmails,
		})
	}
	return out
}

func (e *Engine) scanSearches(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		s, ok := r.Payload.(types.SearchEntry)
		if !ok {
			continue
		}
		lower := strings.ToLower(s.Query)

		matched, flames := e.matchTerms(lower, len(lower), false)
		for _, phrase := range e.phrases {
			if strings.Contains(lower, phrase) {
				matched = append(matched, phrase)
				flames = max(flames, suspiciousFlames)
			}
		}
		for i, re := range e.termRes {
			if re.MatchString(lower) {
				matched = append(matched, e.profile.SuspiciousTerms[i])
				flames = max(flames, suspiciousFlames)
			}
		}
		if len(matched) == 0 || flames < 2 {
			continue
		}

		out = append(out, types.Discovery{
			ID:        discoveryID("search", deviceID, s.Time, s.Query),
			Title:     fmt.Sprintf("%s: Searched '%s'", owner, clip(s.Query, 60)),
			Category:  types.DiscoverySearches,
			Flames:    flames,
			DeviceID:  deviceID,
			Owner:     owner,
			Content:   fmt.Sprintf("Search query: %s\nSource: %s\nTime: %s", s.Query, s.SourceApp, s.Time),
			Timestamp: s.Time,
			Tags:      head(matched, 5),
			DataType:  types.CategorySearches,
		})
	}
	return out
}

// scanPasswords emits one aggregate finding per device holding stored
// credentials, with up to ten samples in the content.
func (e *Engine) scanPasswords(deviceID, owner string, records []types.Record) []types.Discovery {
	var samples []string
	total := 0
	for _, r := range records {
		g, ok := r.Payload.(types.GenericEntry)
		if !ok {
			continue
		}
		total++
		if len(samples) < 10 {
			samples = append(samples, "  • "+clip(g.Content, 80))
		}
	}
	if total == 0 {
		return nil
	}

	return []types.Discovery{{
		ID:       discoveryID("passwords", deviceID, fmt.Sprint(total)),
		Title:    fmt.Sprintf("%s: %d Stored Passwords Found", owner, total),
		Category: types.DiscoveryPasswords,
		Flames:   2,
		DeviceID: deviceID,
		Owner:    owner,
		Content:  fmt.Sprintf("Found %d stored passwords/credentials.\nSamples:\n%s", total, strings.Join(samples, "\n")),
		Tags:     []string{"passwords", "credentials"},
		DataType: types.CategoryPasswords,
	}}
}

func (e *Engine) scanLocations(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		loc, ok := r.Payload.(types.LocationEntry)
		if !ok {
			continue
		}
		cd, ok := e.matchDate(loc.Time)
		if !ok {
			continue
		}

		place := loc.Address
		if place == "" {
			place = loc.Coords
		}
		if place == "" {
			place = "Unknown"
		}
		out = append(out, types.Discovery{
			ID:        discoveryID("loc", deviceID, loc.Time, place),
			Title:     fmt.Sprintf("%s: Location on %s (%s)", owner, cd.label, cd.date),
			Category:  types.DiscoveryLocations,
			Flames:    cd.flames,
			DeviceID:  deviceID,
			Owner:     owner,
			Content:   fmt.Sprintf("Location: %s\nSource: %s\nTime: %s", place, loc.SourceApp, loc.Time),
			Timestamp: loc.Time,
			Tags:      []string{cd.label, "location"},
			DataType:  types.CategoryLocations,
		})
	}
	return out
}

func (e *Engine) scanCalls(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		call, ok := r.Payload.(types.CallEntry)
		if !ok {
			continue
		}
		cd, ok := e.matchDate(call.Time)
		if !ok {
			continue
		}

		out = append(out, types.Discovery{
			ID:       discoveryID("call", deviceID, call.Time, call.Direction, call.Details),
			Title:    fmt.Sprintf("%s: %s call on %s", owner, call.Direction, cd.label),
			Category: types.DiscoveryCommunications,
			Flames:   cd.flames,
			DeviceID: deviceID,
			Owner:    owner,
			Content: fmt.Sprintf("Direction: %s\nStatus: %s\nDuration: %s\nDetails: %s\nTime: %s",
				call.Direction, call.Status, call.Duration, call.Details, call.Time),
			Timestamp: call.Time,
			Tags:      []string{cd.label, "call", call.Direction},
			DataType:  types.CategoryCalls,
		})
	}
	return out
}

func (e *Engine) scanBrowsing(deviceID, owner string, records []types.Record) []types.Discovery {
	var out []types.Discovery
	for _, r := range records {
		b, ok := r.Payload.(types.BrowsingEntry)
		if !ok {
			continue
		}
		text := strings.ToLower(b.Title + " " + b.URL)

		matched, flames := e.matchTerms(text, len(text), false)
		if len(matched) == 0 || flames < 2 {
			continue
		}
		out = append(out, types.Discovery{
			ID:        discoveryID("browse", deviceID, b.Time, b.URL),
			Title:     fmt.Sprintf("%s: Visited '%s'", owner, clip(b.Title, 60)),
			Category:  types.DiscoverySearches,
			Flames:    flames,
			DeviceID:  deviceID,
			Owner:     owner,
			Content:   fmt.Sprintf("Title: %s\nURL: %s\nBrowser: %s\nTime: %s", b.Title, b.URL, b.Browser, b.Time),
			Timestamp: b.Time,
			Tags:      head(matched, 5),
			DataType:  types.CategoryBrowsing,
		})
	}
	return out
}

// scanCrossDevice flags contact names appearing in multiple devices' address
// books. Key-person names are top tier; anyone else needs three devices.
func (e *Engine) scanCrossDevice(devices []DeviceRecords) []types.Discovery {
	byName := map[string]map[string]bool{}
	var names []string

	for _, dev := range devices {
		for _, r := range dev.Records {
			c, ok := r.Payload.(types.Contact)
			if !ok {
				continue
			}
			name := strings.TrimSpace(c.Name)
			if name == "" {
				continue
			}
			if byName[name] == nil {
				byName[name] = map[string]bool{}
				names = append(names, name)
			}
			byName[name][dev.DeviceID] = true
		}
	}
	sort.Strings(names)

	var out []types.Discovery
	for _, name := range names {
		owners := byName[name]
		if len(owners) < 2 {
			continue
		}

		flames := 1
		lower := strings.ToLower(name)
		for _, kp := range e.keyPeople {
			if strings.Contains(lower, kp) {
				flames = suspiciousFlames
				break
			}
		}
		if flames < 2 && len(owners) < 3 {
			continue
		}

		ids := make([]string, 0, len(owners))
		for id := range owners {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		out = append(out, types.Discovery{
			ID:       discoveryID("cross", name),
			Title:    fmt.Sprintf("Cross-Device: '%s' appears on %d devices", name, len(ids)),
			Category: types.DiscoveryCrossDevice,
			Flames:   flames,
			Owner:    "Multiple",
			Content:  fmt.Sprintf("Contact '%s' found on: %s", name, strings.Join(ids, ", ")),
			Tags:     []string{"cross-device", "shared contact", name},
			DataType: types.CategoryContacts,
		})
	}
	return out
}

// deduplicate collapses chat and location findings sharing a device, date,
// and tag set, keeping the first emitted. Verified findings never enter this
// path.
func deduplicate(discoveries []types.Discovery) []types.Discovery {
	seen := map[string]bool{}
	out := make([]types.Discovery, 0, len(discoveries))
	for _, d := range discoveries {
		if (d.DataType == types.CategoryChats || d.DataType == types.CategoryLocations) && d.Timestamp != "" {
			tags := append([]string(nil), d.Tags...)
			sort.Strings(tags)
			key := fmt.Sprintf("%s:%s:%s:%s", d.DataType, d.DeviceID, clip(d.Timestamp, 10), strings.Join(tags, ","))
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, d)
	}
	return out
}

// discoveryID derives a stable identifier from the finding's discriminating
// fields, so repeated scans over the same evidence reuse the same IDs.
func discoveryID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return prefix + "-" + hex.EncodeToString(sum[:])[:12]
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func head(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
