package rpc

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vaultchain/core"
	"vaultchain/core/events"
	"vaultchain/indexer"
	"vaultchain/native/proxy"
	"vaultchain/native/zap"
)

func vaultIDParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid id %q", errBadRequest, name, raw)
	}
	return id, nil
}

func (s *Server) respond(w http.ResponseWriter, result interface{}, receipt *core.Receipt) {
	writeJSON(w, http.StatusOK, envelope{Result: result, Receipt: toReceipt(receipt)})
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.app.VaultInfo(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := view.Vault
	s.respond(w, vaultJSON{
		ID:         v.ID,
		Name:       v.Name,
		Symbol:     v.Symbol,
		AssetClass: v.AssetClass,
		Is1155:     v.Is1155,
		AllowAll:   v.AllowAll,
		Manager:    events.FormatAddress(v.Manager),
		Finalized:  v.Finalized,
		Account:    events.FormatAddress(v.Account),
		Features:   v.Features,
		Fees: map[string]string{
			"mint":         events.FormatAmount(v.Fees.Mint),
			"randomRedeem": events.FormatAmount(v.Fees.RandomRedeem),
			"targetRedeem": events.FormatAmount(v.Fees.TargetRedeem),
			"randomSwap":   events.FormatAmount(v.Fees.RandomSwap),
			"targetSwap":   events.FormatAmount(v.Fees.TargetSwap),
		},
		ShareSupply: events.FormatAmount(view.ShareSupply),
		Held:        events.FormatAmount(view.Held),
	}, nil)
}

func (s *Server) getHoldings(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	holdings, err := s.app.Holdings(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]holdingJSON, len(holdings))
	for i, h := range holdings {
		out[i] = holdingJSON{ID: events.FormatAmount(h.ID), Amount: events.FormatAmount(h.Amount)}
	}
	s.respond(w, out, nil)
}

func (s *Server) getFees(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.app.FeeTotals(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{
		"shareToken": totals.ShareToken,
		"reported":   events.FormatAmount(totals.Reported),
		"toStaking":  events.FormatAmount(totals.ToStaking),
		"toTreasury": events.FormatAmount(totals.ToTreasury),
		"pending":    events.FormatAmount(totals.Pending()),
	}, nil)
}

func (s *Server) getStake(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	addr, err := parseAddress("addr", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.app.StakeInfo(id, addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"stakingToken": view.Pool.StakingToken,
		"rewardToken":  view.Pool.RewardToken,
		"totalStaked":  events.FormatAmount(view.Pool.TotalStaked),
		"staked":       events.FormatAmount(view.Position.Amount),
		"lockedUntil":  view.Position.LockedUntil,
		"pending":      events.FormatAmount(view.Pending),
	}, nil)
}

func (s *Server) getProxy(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 8)
	if err != nil || int(index) >= len(proxy.Components()) {
		s.fail(w, r, fmt.Errorf("%w: proxy index %q", errNotFound, chi.URLParam(r, "index")))
		return
	}
	c := proxy.Component(index)
	view, err := s.app.ProxyInfo(c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"index":     index,
		"component": c.String(),
		"impl":      events.FormatAddress(view.Record.Impl),
		"cached":    events.FormatAddress(view.Cached),
		"admin":     events.FormatAddress(view.Record.Admin),
	}, nil)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := indexer.Filter{
		Type:    q.Get("type"),
		OpID:    q.Get("op"),
		VaultID: q.Get("vault"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: from: invalid height %q", errBadRequest, raw))
			return
		}
		filter.FromHeight = from
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.fail(w, r, fmt.Errorf("%w: limit: invalid value %q", errBadRequest, raw))
			return
		}
		filter.Limit = limit
	}
	records, err := s.app.Events(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]eventJSON, len(records))
	for i, rec := range records {
		out[i] = eventJSON{
			OpID:       rec.OpID,
			Op:         rec.Op,
			Height:     rec.Height,
			Type:       rec.Type,
			Attributes: rec.Attrs(),
		}
	}
	s.respond(w, out, nil)
}

func (s *Server) createVault(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	v, receipt, err := s.app.CreateVault(ctx, caller, req.Name, req.Symbol, req.AssetClass, req.AllowAll, req.Is1155)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"id":      v.ID,
		"symbol":  v.Symbol,
		"account": events.FormatAddress(v.Account),
	}, receipt)
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req mintRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := parseInts("ids", req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseInts("amounts", req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	res, receipt, err := s.app.Mint(ctx, caller, id, ids, amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"count":  res.Count,
		"shares": events.FormatAmount(res.Shares),
		"fee":    events.FormatAmount(res.Fee),
	}, receipt)
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req redeemRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	specific, err := parseInts("specificIds", req.SpecificIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	res, receipt, err := s.app.Redeem(ctx, caller, id, req.Count, specific, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"ids": formatInts(res.IDs),
		"fee": events.FormatAmount(res.Fee),
	}, receipt)
}

func (s *Server) swap(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req swapRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := parseInts("ids", req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseInts("amounts", req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	specific, err := parseInts("specificOut", req.SpecificOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	res, receipt, err := s.app.Swap(ctx, caller, id, ids, amounts, specific, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"ids": formatInts(res.IDs),
		"fee": events.FormatAmount(res.Fee),
	}, receipt)
}

func (s *Server) distribute(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req callerRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	d, receipt, err := s.app.Distribute(ctx, caller, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{
		"amount":     events.FormatAmount(d.Amount),
		"toStaking":  events.FormatAmount(d.ToStaking),
		"toTreasury": events.FormatAmount(d.ToTreasury),
	}, receipt)
}

func (s *Server) stakeRequest(w http.ResponseWriter, r *http.Request) (uint64, [20]byte, stakeRequest, bool) {
	var req stakeRequest
	var caller [20]byte
	id, err := vaultIDParam(r, "id")
	if err == nil {
		caller, err = s.authenticate(r, &req)
	}
	if err != nil {
		s.fail(w, r, err)
		return 0, caller, req, false
	}
	return id, caller, req, true
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	id, caller, req, ok := s.stakeRequest(w, r)
	if !ok {
		return
	}
	amount, err := parseInt("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	pos, receipt, err := s.app.Stake(ctx, caller, id, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"staked":      events.FormatAmount(pos.Amount),
		"lockedUntil": pos.LockedUntil,
	}, receipt)
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	id, caller, req, ok := s.stakeRequest(w, r)
	if !ok {
		return
	}
	amount, err := parseInt("amount", req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	reward, receipt, err := s.app.Unstake(ctx, caller, id, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{"reward": events.FormatAmount(reward)}, receipt)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	id, caller, _, ok := s.stakeRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	reward, receipt, err := s.app.Claim(ctx, caller, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{"reward": events.FormatAmount(reward)}, receipt)
}

func (s *Server) mintAndSell(w http.ResponseWriter, r *http.Request) {
	var req mintAndSellRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := parseInts("ids", req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseInts("amounts", req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	minOut, err := parseInt("minBaseOut", req.MinBaseOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	received, receipt, err := s.app.MintAndSell(ctx, caller, req.VaultID, ids, amounts, minOut, req.Path, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]string{"received": events.FormatAmount(received)}, receipt)
}

func redeemOutcome(o *zap.RedeemOutcome) map[string]interface{} {
	return map[string]interface{}{
		"ids":       formatInts(o.IDs),
		"baseSpent": events.FormatAmount(o.BaseSpent),
		"refunded":  events.FormatAmount(o.Refunded),
		"fee":       events.FormatAmount(o.Fee),
	}
}

func (s *Server) buyAndRedeem(w http.ResponseWriter, r *http.Request) {
	var req buyAndRedeemRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	specific, err := parseInts("specificIds", req.SpecificIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	maxIn, err := parseInt("maxBaseIn", req.MaxBaseIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	out, receipt, err := s.app.BuyAndRedeem(ctx, caller, req.VaultID, req.Count, specific, maxIn, req.Path, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, redeemOutcome(out), receipt)
}

func (s *Server) buyAndSwap(w http.ResponseWriter, r *http.Request) {
	var req buyAndSwapRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := parseInts("ids", req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseInts("amounts", req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	specific, err := parseInts("specificOut", req.SpecificOut)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	maxIn, err := parseInt("maxBaseIn", req.MaxBaseIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	out, receipt, err := s.app.BuyAndSwap(ctx, caller, req.VaultID, ids, amounts, specific, maxIn, req.Path, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, redeemOutcome(out), receipt)
}

func (s *Server) addLiquidity(w http.ResponseWriter, r *http.Request) {
	var req addLiquidityRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseOptionalAddress("to", req.To, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := parseInts("ids", req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseInts("amounts", req.Amounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	baseMax, err := parseInt("baseMax", req.BaseMax)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	minBaseIn, err := parseInt("minBaseIn", req.MinBaseIn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.opContext(r)
	defer cancel()
	out, receipt, err := s.app.ZapLiquidity(ctx, caller, req.VaultID, ids, amounts, baseMax, minBaseIn, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, map[string]interface{}{
		"shares":      events.FormatAmount(out.Shares),
		"baseUsed":    events.FormatAmount(out.BaseUsed),
		"liquidity":   events.FormatAmount(out.Liquidity),
		"lockedUntil": out.LockedUntil,
	}, receipt)
}
