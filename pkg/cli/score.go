package cli

import (
	"fmt"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/urfave/cli/v2"
)

var (
	defaults = features.DefaultApplicant()

	incomeFlag = &cli.Float64Flag{
		Name:  "income",
		Usage: "Total annual income",
		Value: defaults.Income,
	}

	creditFlag = &cli.Float64Flag{
		Name:  "credit",
		Usage: "Credit amount requested",
		Value: defaults.Credit,
	}

	annuityFlag = &cli.Float64Flag{
		Name:  "annuity",
		Usage: "Loan annuity (periodic payment)",
		Value: defaults.Annuity,
	}

	familyFlag = &cli.Float64Flag{
		Name:  "family",
		Usage: fmt.Sprintf("Number of family members [0-%d]", features.MaxFamilyMembers),
		Value: defaults.FamilyMembers,
	}

	ageFlag = &cli.Float64Flag{
		Name:  "age",
		Usage: fmt.Sprintf("Age in years [%d-%d]", features.MinAgeYears, features.MaxAgeYears),
		Value: defaults.AgeYears,
	}

	employmentFlag = &cli.Float64Flag{
		Name:  "employment",
		Usage: fmt.Sprintf("Years employed [0-%d], omit to keep the reference value", features.MaxEmploymentYears),
	}

	scoreCmd = &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score a single applicant",
		UsageText: `credscore score --income 150000 --credit 500000 --annuity 25000 --family 3 --age 35 --employment 5
   credscore --format yaml score --age 52`,
		Action: cmdScore,
		Flags: []cli.Flag{
			incomeFlag,
			creditFlag,
			annuityFlag,
			familyFlag,
			ageFlag,
			employmentFlag,
		},
	}
)

func cmdScore(c *cli.Context) error {
	a := features.Applicant{
		Income:        c.Float64(incomeFlag.Name),
		Credit:        c.Float64(creditFlag.Name),
		Annuity:       c.Float64(annuityFlag.Name),
		FamilyMembers: c.Float64(familyFlag.Name),
		AgeYears:      c.Float64(ageFlag.Name),
	}
	if c.IsSet(employmentFlag.Name) {
		v := c.Float64(employmentFlag.Name)
		a.EmploymentYears = &v
	}

	if err := a.Validate(); err != nil {
		return err
	}

	svc, err := getService(c)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	res, err := svc.ScoreApplicant(c.Context, a)
	if err != nil {
		return fmt.Errorf("scoring applicant: %w", err)
	}

	return encode(res)
}
