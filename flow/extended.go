package flow

import (
	"context"

	smoke "github.com/st-keller/galacash-smoke"
)

// Extended covers the remaining read-only routes.
func Extended(ctx context.Context, s *Session) error {
	r := s.reporter()
	r.Flow("EXTENDED FLOW - Read-only Routes")

	r.Section("USERS")
	for _, path := range []string{"/users/profile", "/users/classmates"} {
		if _, err := s.get(ctx, path, nil, "users"); err != nil {
			return err
		}
	}

	r.Section("MY CASH BILLS")
	if _, err := s.get(ctx, "/cash-bills/my", pageLimit(), "cash-bills"); err != nil {
		return err
	}

	r.Section("HEALTH")
	if _, err := s.do(ctx, smoke.Call{Path: "/cron/health", Category: "health"}); err != nil {
		return err
	}

	r.Done("Extended flow completed")
	return nil
}
