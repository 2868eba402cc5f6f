package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/catalog"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/engine"
	"github.com/mrdcvlsc/food-reservation/internal/reservation"
	"github.com/mrdcvlsc/food-reservation/internal/topup"
)

type handlers struct {
	engine *engine.Engine
}

type createReservationBody struct {
	Lines      []domain.CartLine `json:"lines"`
	PickupSlot string            `json:"pickup_slot"`
	Note       string            `json:"note"`
}

type setStatusBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type bulkStatusBody struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
	Reason string   `json:"reason"`
}

type submitTopupBody struct {
	Amount         decimal.Decimal `json:"amount"`
	Provider       string          `json:"provider"`
	ProofReference string          `json:"proof_reference"`
}

type decisionBody struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

type stockBody struct {
	Stock *int `json:"stock"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return domain.NewError(domain.ErrCodeInvalidInput, "malformed request body: %v", err)
	}
	return nil
}

func (h *handlers) health(c *fiber.Ctx) error {
	if err := h.engine.Store.Ping(c.UserContext()); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{"state": "serving"})
}

func (h *handlers) listMenu(c *fiber.Ctx) error {
	items, err := h.engine.Menu.List(c.UserContext(), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, items)
}

func (h *handlers) getWallet(c *fiber.Ctx) error {
	actor := actorOf(c)
	w, err := h.engine.Balance(c.UserContext(), actor.UserID, actor)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, w)
}

func (h *handlers) createReservation(c *fiber.Ctx) error {
	var body createReservationBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	r, err := h.engine.Reservations.Create(c.UserContext(), reservation.CreateRequest{
		UserID:     actorOf(c).UserID,
		Lines:      body.Lines,
		PickupSlot: body.PickupSlot,
		Note:       body.Note,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, r)
}

func (h *handlers) listMyReservations(c *fiber.Ctx) error {
	rs, err := h.engine.Reservations.ListByUser(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, rs)
}

func (h *handlers) getReservation(c *fiber.Ctx) error {
	r, err := h.engine.Reservations.Get(c.UserContext(), c.Params("id"), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, r)
}

func (h *handlers) submitTopup(c *fiber.Ctx) error {
	var body submitTopupBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	t, err := h.engine.Topups.Submit(c.UserContext(), topup.SubmitRequest{
		UserID:         actorOf(c).UserID,
		Amount:         body.Amount,
		Provider:       domain.Provider(body.Provider),
		ProofReference: body.ProofReference,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, t)
}

func (h *handlers) listMyTopups(c *fiber.Ctx) error {
	ts, err := h.engine.Topups.ListByUser(c.UserContext(), actorOf(c).UserID)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, ts)
}

func (h *handlers) listReservationsByStatus(c *fiber.Ctx) error {
	status, err := domain.ParseStatus(c.Query("status", string(domain.StatusPending)))
	if err != nil {
		return err
	}
	rs, err := h.engine.Reservations.ListByStatus(c.UserContext(), status, actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, rs)
}

func (h *handlers) setStatus(c *fiber.Ctx) error {
	var body setStatusBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	status, err := domain.ParseStatus(body.Status)
	if err != nil {
		return err
	}
	r, err := h.engine.Reservations.SetStatus(c.UserContext(), c.Params("id"), status, actorOf(c), body.Reason)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, r)
}

func (h *handlers) bulkSetStatus(c *fiber.Ctx) error {
	var body bulkStatusBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	status, err := domain.ParseStatus(body.Status)
	if err != nil {
		return err
	}
	results, err := h.engine.Reservations.BulkSetStatus(c.UserContext(), body.IDs, status, actorOf(c), body.Reason)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, results)
}

func (h *handlers) history(c *fiber.Ctx) error {
	events, err := h.engine.Reservations.History(c.UserContext(), c.Params("id"), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, events)
}

func (h *handlers) listPendingTopups(c *fiber.Ctx) error {
	ts, err := h.engine.Topups.ListPending(c.UserContext(), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, ts)
}

func (h *handlers) decideTopup(c *fiber.Ctx) error {
	var body decisionBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	outcome, err := domain.ParseTopupOutcome(body.Outcome)
	if err != nil {
		return err
	}
	t, err := h.engine.Topups.Decide(c.UserContext(), c.Params("id"), outcome, body.Reason, actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, t)
}

func (h *handlers) upsertMenuItem(c *fiber.Ctx) error {
	var in catalog.ItemInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	in.ID = c.Params("id")
	item, err := h.engine.Menu.Upsert(c.UserContext(), in, actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, item)
}

func (h *handlers) adjustStock(c *fiber.Ctx) error {
	var body stockBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Stock == nil {
		return domain.NewError(domain.ErrCodeInvalidQuantity, "stock is required")
	}
	item, err := h.engine.Menu.AdjustStock(c.UserContext(), c.Params("id"), *body.Stock, actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, item)
}

func (h *handlers) deleteMenuItem(c *fiber.Ctx) error {
	if err := h.engine.Menu.Delete(c.UserContext(), c.Params("id"), actorOf(c)); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{"deleted": c.Params("id")})
}

func (h *handlers) listAlerts(c *fiber.Ctx) error {
	alerts, err := h.engine.Alerts(c.UserContext(), actorOf(c))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, alerts)
}

func (h *handlers) reconcile(c *fiber.Ctx) error {
	report, err := h.engine.Reconcile(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, report)
}
