package matching

import (
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/normalizers"
)

// Match criteria reported on persisted groups.
const (
	CriteriaPhone             = "phone"
	CriteriaFirstName         = "first_name"
	CriteriaBirthday          = "birthday"
	CriteriaBusinessName      = "business_name"
	CriteriaBusinessNameFuzzy = "business_name_fuzzy"
)

type Options struct {
	MinPhoneLength     int
	FuzzyNamesEnabled  bool
	FuzzyNameThreshold float64
}

func DefaultOptions() Options {
	return Options{
		MinPhoneLength:     normalizers.PhoneKeyLength,
		FuzzyNameThreshold: 0.92,
	}
}

func ClientRules(opts Options) []Rule[models.ClientProfile] {
	return []Rule[models.ClientProfile]{
		NewKeyRule([]string{CriteriaPhone}, models.ConfidenceHigh, opts.MinPhoneLength,
			func(c models.ClientProfile) string {
				return normalizers.NormalizePhone(c.Phone)
			}),
		NewKeyRule([]string{CriteriaFirstName, CriteriaBirthday}, models.ConfidenceHigh, 1,
			func(c models.ClientProfile) string {
				name := normalizers.NormalizeString(c.FirstName)
				if name == "" || c.Birthday == "" {
					return ""
				}
				return name + "|" + c.Birthday
			}),
	}
}

func BusinessRules(opts Options) []Rule[models.BusinessAccount] {
	name := func(b models.BusinessAccount) string {
		return normalizers.NormalizeString(b.BusinessName)
	}

	rules := []Rule[models.BusinessAccount]{
		NewKeyRule([]string{CriteriaBusinessName}, models.ConfidenceHigh, 1, name),
		NewKeyRule([]string{CriteriaPhone}, models.ConfidenceHigh, opts.MinPhoneLength,
			func(b models.BusinessAccount) string {
				return normalizers.NormalizePhone(b.Phone)
			}),
	}
	if opts.FuzzyNamesEnabled {
		rules = append(rules, NewSimilarityRule([]string{CriteriaBusinessNameFuzzy}, models.ConfidenceMedium, opts.FuzzyNameThreshold,
			func(b models.BusinessAccount) string {
				return normalizers.CollapseWhitespace(name(b))
			}))
	}
	return rules
}
