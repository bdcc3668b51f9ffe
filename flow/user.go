package flow

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	smoke "github.com/st-keller/galacash-smoke"
	"github.com/st-keller/galacash-smoke/export"
	"github.com/st-keller/galacash-smoke/types"
)

var (
	txnTypes       = []string{"income", "expense"}
	exportFormats  = []string{"excel", "csv"}
	fundStatuses   = []string{"pending", "approved", "rejected"}
	billStatuses   = []string{"belum_dibayar", "menunggu_konfirmasi", "sudah_dibayar"}
	fundCategories = []string{"education", "health", "emergency", "equipment"}
)

func pageLimit() types.Params {
	return types.P("page", 1, "limit", 10)
}

// User exercises the student endpoints.
func User(ctx context.Context, s *Session) error {
	r := s.reporter()
	r.Flow("USER FLOW - Comprehensive Endpoint Coverage")

	r.Section("AUTH & PROFILE")
	// /auth/me is covered by the runner's check-me step to spare the auth rate limit.

	r.Section("DASHBOARD")
	for _, path := range []string{"/dashboard/summary", "/dashboard/pending-bills", "/dashboard/pending-applications"} {
		if _, err := s.get(ctx, path, nil, "dashboard"); err != nil {
			return err
		}
	}

	r.Section("LABELS")
	var categories []string
	for _, path := range []string{
		"/labels",
		"/labels/bill-statuses",
		"/labels/fund-statuses",
		"/labels/fund-categories",
		"/labels/transaction-types",
		"/labels/transaction-categories",
		"/labels/payment-methods",
	} {
		resp, err := s.get(ctx, path, nil, "labels")
		if err != nil {
			return err
		}
		if path == "/labels/transaction-categories" {
			categories = types.LabelValues(resp.Body)
		}
	}

	r.Section("PAYMENT ACCOUNTS")
	// Public route: no token.
	if _, err := s.do(ctx, smoke.Call{Path: "/payment-accounts/active", Category: "payment-accounts"}); err != nil {
		return err
	}

	r.Section("TRANSACTIONS")
	if err := userTransactions(ctx, s, categories); err != nil {
		return err
	}

	r.Section("EXPORTS")
	if err := userExports(ctx, s, categories); err != nil {
		return err
	}

	r.Section("FUND APPLICATIONS")
	if err := userFundApplications(ctx, s); err != nil {
		return err
	}

	r.Section("CASH BILLS")
	if err := userCashBills(ctx, s); err != nil {
		return err
	}

	r.Done("User flow completed")
	return nil
}

func userTransactions(ctx context.Context, s *Session, categories []string) error {
	const cat = "transactions"

	resp, err := s.get(ctx, "/transactions", pageLimit(), cat)
	if err != nil {
		return err
	}
	ids := types.ExtractIDs(resp.Body, 2)

	if _, err := s.get(ctx, "/transactions", pageLimit().Set("page", 2), cat); err != nil {
		return err
	}
	if _, err := s.get(ctx, "/transactions", types.P("page", 1, "limit", 5), cat); err != nil {
		return err
	}

	for _, txnType := range txnTypes {
		calls := []types.Params{
			pageLimit().Set("type", txnType),
			pageLimit().With(types.P("type", txnType, "sortBy", "date", "sortOrder", "desc")),
		}
		for _, c := range firstN(categories, 2) {
			calls = append(calls, pageLimit().With(types.P("type", txnType, "category", c)))
		}
		for _, params := range calls {
			if _, err := s.get(ctx, "/transactions", params, cat); err != nil {
				return err
			}
		}

		if _, err := s.get(ctx, "/transactions/chart-data", types.P("type", txnType), cat); err != nil {
			return err
		}
		if _, err := s.get(ctx, "/transactions/breakdown", types.P("type", txnType), cat); err != nil {
			return err
		}
	}

	for _, id := range ids {
		if _, err := s.get(ctx, "/transactions/"+id, nil, cat); err != nil {
			return err
		}
	}
	return nil
}

func userExports(ctx context.Context, s *Session, categories []string) error {
	for _, txnType := range txnTypes {
		for _, format := range exportFormats {
			params := types.P("format", format, "type", txnType)
			if len(categories) > 0 {
				params = params.Set("category", categories[0])
			}

			resp, err := s.do(ctx, smoke.Call{
				Method:   http.MethodGet,
				Path:     "/transactions/export",
				Token:    s.Token,
				Params:   params,
				Raw:      true,
				Category: "exports",
			})
			if err != nil {
				return err
			}

			if s.SaveDir == "" || resp.StatusCode != http.StatusOK {
				continue
			}
			f, err := export.Save(s.SaveDir, export.FileName(txnType, format), resp.Raw)
			if err != nil {
				return fmt.Errorf("save export: %w", err)
			}
			s.logger().Debug("Export saved",
				zap.String("path", f.Path),
				zap.Int("bytes", f.Size),
				zap.String("sha256", f.Checksum),
			)
			s.reporter().Saved(f)
		}
	}
	return nil
}

func userFundApplications(ctx context.Context, s *Session) error {
	const cat = "fund-applications"

	resp, err := s.get(ctx, "/fund-applications", pageLimit(), cat)
	if err != nil {
		return err
	}
	ids := types.ExtractIDs(resp.Body, 2)

	resp, err = s.get(ctx, "/fund-applications/my", pageLimit(), cat)
	if err != nil {
		return err
	}
	ids = append(ids, types.ExtractIDs(resp.Body, 2)...)

	var calls []types.Params
	for _, status := range fundStatuses {
		calls = append(calls, pageLimit().Set("status", status))
	}
	for _, c := range fundCategories[:2] {
		calls = append(calls, pageLimit().Set("category", c))
	}
	calls = append(calls, pageLimit().With(types.P("sortBy", "date", "sortOrder", "desc")))

	for _, params := range calls {
		if _, err := s.get(ctx, "/fund-applications", params, cat); err != nil {
			return err
		}
	}

	for _, id := range firstN(ids, 3) {
		if _, err := s.get(ctx, "/fund-applications/"+id, nil, cat); err != nil {
			return err
		}
	}
	return nil
}

func userCashBills(ctx context.Context, s *Session) error {
	const cat = "cash-bills"

	resp, err := s.get(ctx, "/cash-bills", pageLimit(), cat)
	if err != nil {
		return err
	}
	ids := types.ExtractIDs(resp.Body, 2)

	var calls []types.Params
	for _, status := range billStatuses {
		calls = append(calls, pageLimit().Set("status", status))
	}
	calls = append(calls,
		pageLimit().Set("year", s.CurrentYear),
		pageLimit().Set("month", fmt.Sprintf("%d-01", s.CurrentYear)),
		pageLimit().With(types.P("sortBy", "dueDate", "sortOrder", "asc")),
	)
	for _, params := range calls {
		if _, err := s.get(ctx, "/cash-bills", params, cat); err != nil {
			return err
		}
	}

	// Paying and cancelling bills are skipped to keep the run read-only.
	for _, id := range ids {
		if _, err := s.get(ctx, "/cash-bills/"+id, nil, cat); err != nil {
			return err
		}
	}
	return nil
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
