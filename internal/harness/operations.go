package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/catalog"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/engine"
	"github.com/mrdcvlsc/food-reservation/internal/reservation"
	"github.com/mrdcvlsc/food-reservation/internal/store"
	"github.com/mrdcvlsc/food-reservation/internal/topup"
)

// operation runs one named engine call and returns a canonical summary of
// its result: map[string]any or []any holding strings, ints and bools only.
type operation func(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error)

var operations = map[string]operation{
	"menu.upsert":               menuUpsert,
	"menu.adjustStock":          menuAdjustStock,
	"menu.delete":               menuDelete,
	"wallet.credit":             walletCredit,
	"wallet.balance":            walletBalance,
	"reservation.create":        reservationCreate,
	"reservation.setStatus":     reservationSetStatus,
	"reservation.bulkSetStatus": reservationBulkSetStatus,
	"reservation.get":           reservationGet,
	"topup.submit":              topupSubmit,
	"topup.decide":              topupDecide,
	"reconcile":                 reconcile,
}

// decodeArgs maps scenario args onto a typed request through JSON, so the
// request types keep their wire names.
func decodeArgs(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.NewError(domain.ErrCodeInvalidInput, "bad args: %v", err)
	}
	return nil
}

func menuSummary(item domain.MenuItem) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"stock":      item.Stock,
		"unit_price": domain.FormatMoney(item.UnitPrice),
		"active":     item.Active,
	}
}

func reservationSummary(r domain.Reservation) map[string]any {
	return map[string]any{
		"id":     r.ID,
		"status": string(r.Status),
		"total":  domain.FormatMoney(r.Total),
	}
}

func topupSummary(t domain.Topup) map[string]any {
	return map[string]any{
		"id":     t.ID,
		"status": string(t.Status),
		"amount": domain.FormatMoney(t.Amount),
	}
}

func menuUpsert(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in catalog.ItemInput
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	item, err := e.Menu.Upsert(ctx, in, actor)
	if err != nil {
		return nil, err
	}
	return menuSummary(item), nil
}

func menuAdjustStock(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		ID    string `json:"id"`
		Stock int    `json:"stock"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	item, err := e.Menu.AdjustStock(ctx, in.ID, in.Stock, actor)
	if err != nil {
		return nil, err
	}
	return menuSummary(item), nil
}

func menuDelete(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := e.Menu.Delete(ctx, in.ID, actor); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": in.ID}, nil
}

// walletCredit seeds an opening balance. Admin only; a user is credited once.
func walletCredit(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		User   string          `json:"user"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can seed balances")
	}
	applied, err := e.Wallet.Credit(ctx, in.User, in.Amount, store.EntryOpening, catalog.OpeningReference(in.User))
	if err != nil {
		return nil, err
	}
	return map[string]any{"applied": applied}, nil
}

func walletBalance(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		User string `json:"user"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.User == "" {
		in.User = actor.UserID
	}
	w, err := e.Balance(ctx, in.User, actor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": w.UserID, "balance": domain.FormatMoney(w.Balance)}, nil
}

func reservationCreate(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var req reservation.CreateRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	req.UserID = actor.UserID
	r, err := e.Reservations.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return reservationSummary(r), nil
}

type statusArgs struct {
	ID     string   `json:"id"`
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
	Reason string   `json:"reason"`
}

func reservationSetStatus(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in statusArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	r, err := e.Reservations.SetStatus(ctx, in.ID, status, actor, in.Reason)
	if err != nil {
		return nil, err
	}
	return reservationSummary(r), nil
}

func reservationBulkSetStatus(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in statusArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	results, err := e.Reservations.BulkSetStatus(ctx, in.IDs, status, actor, in.Reason)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, res := range results {
		entry := map[string]any{"id": res.ID, "ok": res.OK}
		if res.Code != "" {
			entry["code"] = res.Code
		}
		out[i] = entry
	}
	return out, nil
}

func reservationGet(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in statusArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	r, err := e.Reservations.Get(ctx, in.ID, actor)
	if err != nil {
		return nil, err
	}
	return reservationSummary(r), nil
}

func topupSubmit(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		Amount         decimal.Decimal `json:"amount"`
		Provider       string          `json:"provider"`
		ProofReference string          `json:"proof_reference"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	t, err := e.Topups.Submit(ctx, topup.SubmitRequest{
		UserID:         actor.UserID,
		Amount:         in.Amount,
		Provider:       domain.Provider(in.Provider),
		ProofReference: in.ProofReference,
	})
	if err != nil {
		return nil, err
	}
	return topupSummary(t), nil
}

func topupDecide(ctx context.Context, e *engine.Engine, actor domain.Actor, args map[string]any) (any, error) {
	var in struct {
		ID      string `json:"id"`
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	outcome, err := domain.ParseTopupOutcome(in.Outcome)
	if err != nil {
		return nil, err
	}
	t, err := e.Topups.Decide(ctx, in.ID, outcome, in.Reason, actor)
	if err != nil {
		return nil, err
	}
	return topupSummary(t), nil
}

func reconcile(ctx context.Context, e *engine.Engine, actor domain.Actor, _ map[string]any) (any, error) {
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can reconcile")
	}
	report, err := e.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"clean": report.Clean()}, nil
}
