package flow

import (
	"context"
	"fmt"

	"github.com/st-keller/galacash-smoke/types"
)

// Bendahara exercises the treasurer endpoints. Approvals and payment
// confirmations are not sent.
func Bendahara(ctx context.Context, s *Session) error {
	r := s.reporter()
	r.Flow("BENDAHARA FLOW - Comprehensive Endpoint Coverage")

	steps := []struct {
		section string
		path    string
		calls   []types.Params
	}{
		{"BENDAHARA DASHBOARD", "/bendahara/dashboard", []types.Params{nil}},
		{"BENDAHARA - FUND APPLICATIONS", "/bendahara/fund-applications", bendaharaFundCalls()},
		{"BENDAHARA - CASH BILLS", "/bendahara/cash-bills", bendaharaBillCalls(s.CurrentYear)},
		{"BENDAHARA - STUDENTS", "/bendahara/students", []types.Params{
			pageLimit(),
			types.P("page", 1, "limit", 20),
			pageLimit().Set("page", 2),
		}},
		{"BENDAHARA - REKAP KAS", "/bendahara/rekap-kas", []types.Params{
			nil,
			types.P("groupBy", "day"),
			types.P("groupBy", "week"),
			types.P("groupBy", "month"),
			types.P("groupBy", "year"),
		}},
	}

	for _, step := range steps {
		r.Section(step.section)
		for _, params := range step.calls {
			if _, err := s.get(ctx, step.path, params, "bendahara"); err != nil {
				return err
			}
		}
	}

	r.Done("Bendahara flow completed")
	return nil
}

func bendaharaFundCalls() []types.Params {
	calls := []types.Params{pageLimit()}
	for _, status := range fundStatuses {
		calls = append(calls, pageLimit().Set("status", status))
	}
	for _, c := range fundCategories {
		calls = append(calls, pageLimit().Set("category", c))
	}
	calls = append(calls, pageLimit().Set("page", 2))
	for _, sortBy := range []string{"date", "amount", "status"} {
		calls = append(calls, pageLimit().With(types.P("sortBy", sortBy, "sortOrder", "desc")))
	}
	return append(calls, pageLimit().With(types.P("minAmount", 10000, "maxAmount", 500000)))
}

func bendaharaBillCalls(year int) []types.Params {
	calls := []types.Params{pageLimit()}
	for _, status := range billStatuses {
		calls = append(calls, pageLimit().Set("status", status))
	}
	calls = append(calls,
		pageLimit().Set("month", fmt.Sprintf("%d-01", year)),
		pageLimit().Set("month", fmt.Sprintf("%d-12", year-1)),
		pageLimit().Set("year", year),
		pageLimit().Set("page", 2),
	)
	for _, sortBy := range []string{"dueDate", "month", "status"} {
		calls = append(calls, pageLimit().With(types.P("sortBy", sortBy, "sortOrder", "asc")))
	}
	return calls
}
