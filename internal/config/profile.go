package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/casefile/pkg/types"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// CaseProfile is the curated knowledge about one case: which devices exist
// and who owns them, who the primary participants are, which keywords and
// dates matter, and the pre-verified findings. It is deliberately data, not
// code, so a new case means a new YAML file rather than a rebuild.
type CaseProfile struct {
	// Devices maps a line-oriented export directory name to its device.
	Devices map[string]DeviceInfo `yaml:"devices"`

	// BulkDevices maps a bulk-JSON extraction directory name to its device.
	// Extractions sharing a case-number prefix are merged at presentation
	// time into one composite device.
	BulkDevices map[string]DeviceInfo `yaml:"bulk_devices"`

	// Participants are the curated primary case figures.
	Participants []Participant `yaml:"participants"`

	// KeywordTiers maps a case term to its significance tier (1-3).
	KeywordTiers map[string]int `yaml:"keyword_tiers"`

	// CriticalDates maps a calendar date (YYYY-MM-DD) to its label and tier.
	CriticalDates map[string]CriticalDate `yaml:"critical_dates"`

	// KeyPeople are names whose cross-device appearance is tier 3.
	KeyPeople []string `yaml:"key_people"`

	// SuspiciousPhrases flag search queries by substring match.
	SuspiciousPhrases []string `yaml:"suspicious_phrases"`

	// SuspiciousTerms flag search queries by word-boundary match; these are
	// short terms that would over-match as substrings.
	SuspiciousTerms []string `yaml:"suspicious_terms"`

	// Verified are the curated pre-seeded discoveries.
	Verified []VerifiedDiscovery `yaml:"verified_discoveries"`

	// Legal configures the legal-corpus cross-reference.
	Legal LegalProfile `yaml:"legal"`
}

// DeviceInfo describes one device in the profile.
type DeviceInfo struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Owner string `yaml:"owner"`
}

// Participant is a curated primary case figure.
type Participant struct {
	Name    string   `yaml:"name"`
	Role    string   `yaml:"role"`
	Devices []string `yaml:"devices"`
	Aliases []string `yaml:"aliases"`
}

// CriticalDate labels a case-critical calendar date.
type CriticalDate struct {
	Label  string `yaml:"label"`
	Flames int    `yaml:"flames"`
}

// VerifiedDiscovery is a pre-seeded finding in profile form.
type VerifiedDiscovery struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Category  string   `yaml:"category"`
	Flames    int      `yaml:"flames"`
	DeviceID  string   `yaml:"device_id"`
	Owner     string   `yaml:"owner"`
	Content   string   `yaml:"content"`
	Timestamp string   `yaml:"timestamp"`
	Tags      []string `yaml:"tags"`
}

// Discovery converts the profile entry to a store discovery with the
// verified flag set.
func (v VerifiedDiscovery) Discovery() types.Discovery {
	return types.Discovery{
		ID:        v.ID,
		Title:     v.Title,
		Category:  v.Category,
		Flames:    v.Flames,
		DeviceID:  v.DeviceID,
		Owner:     v.Owner,
		Content:   v.Content,
		Timestamp: v.Timestamp,
		Verified:  true,
		Tags:      v.Tags,
	}
}

// LegalProfile configures the legal-corpus scanner.
type LegalProfile struct {
	// Cases lists the proceedings whose filing text is scanned. Dirs are
	// relative to the configured legal base directory.
	Cases []LegalCase `yaml:"cases"`

	// NamePatterns maps a person's display name to the regular expression
	// variants that count as a mention of them.
	NamePatterns map[string][]string `yaml:"name_patterns"`
}

// LegalCase is one legal proceeding in the corpus.
type LegalCase struct {
	CaseID   string   `yaml:"case_id"`
	Label    string   `yaml:"label"`
	CaseType string   `yaml:"case_type"`
	Dirs     []string `yaml:"dirs"`
}

// DefaultProfile returns the embedded default case profile.
func DefaultProfile() (*CaseProfile, error) {
	return parseProfile(defaultProfileYAML)
}

// LoadProfile loads a case profile from a YAML file. An empty path returns
// the embedded default.
func LoadProfile(path string) (*CaseProfile, error) {
	if path == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read case profile: %w", err)
	}
	return parseProfile(data)
}

func parseProfile(data []byte) (*CaseProfile, error) {
	var p CaseProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: failed to parse case profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *CaseProfile) validate() error {
	for term, tier := range p.KeywordTiers {
		if tier < 1 || tier > 3 {
			return fmt.Errorf("config: keyword %q has tier %d, want 1-3", term, tier)
		}
	}
	for date, cd := range p.CriticalDates {
		if cd.Flames < 1 || cd.Flames > 3 {
			return fmt.Errorf("config: critical date %q has tier %d, want 1-3", date, cd.Flames)
		}
	}
	for _, v := range p.Verified {
		if v.ID == "" {
			return fmt.Errorf("config: verified discovery %q has no id", v.Title)
		}
	}
	return nil
}

// VerifiedDiscoveries returns the pre-seeded findings as store discoveries.
func (p *CaseProfile) VerifiedDiscoveries() []types.Discovery {
	out := make([]types.Discovery, 0, len(p.Verified))
	for _, v := range p.Verified {
		out = append(out, v.Discovery())
	}
	return out
}
