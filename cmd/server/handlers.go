package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/campaignrules/accountengine"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
	"github.com/liamcoop/campaignrules/rules"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		AccountsLoaded: len(s.manager.ListAccounts()),
		Counters: map[string]int64{
			"errors":      logger.TotalErrors.Load(),
			"warnings":    logger.TotalWarnings.Load(),
			"diagnostics": logger.TotalDiagnostics.Load(),
			"http5xx":     logger.Total5xxErrors.Load(),
			"http4xx":     logger.Total4xxErrors.Load(),
			"slow":        logger.SlowRequests.Load(),
		},
	}
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}
	if s.pipeline != nil {
		stats := s.pipeline.Stats()
		resp.Pipeline = &stats
	}

	if err := s.pingDB(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Evaluation handler. Nothing is recorded and no actions are dispatched.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Snapshot == nil {
		respondError(w, http.StatusBadRequest, "snapshot is required", nil)
		return
	}

	startTime := time.Now()
	var results []*rules.EvaluationResult

	switch {
	case req.Rule != "" && req.AccountID == "":
		matched, diags := rules.Compile(req.Rule).Trace(req.Snapshot)
		res := &rules.EvaluationResult{Expression: req.Rule, Matched: matched, Diagnostics: diags}
		results = []*rules.EvaluationResult{res}

	case req.AccountID == "":
		respondError(w, http.StatusBadRequest, "accountId or rule is required", nil)
		return

	default:
		engine, err := s.manager.GetEngine(req.AccountID)
		if err != nil {
			respondError(w, errorStatus(err), "account not found", err)
			return
		}
		if req.Rule != "" {
			results = []*rules.EvaluationResult{engine.EvaluateText(req.Rule, req.Snapshot)}
			break
		}
		results, err = engine.EvaluateAll(req.Snapshot)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "evaluation failed", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Results:        results,
		EvaluationTime: time.Since(startTime).String(),
	})
}

func (s *Server) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	var req ValidateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	prog := rules.Compile(req.Expression)
	diags := prog.Check()
	if diags == nil {
		diags = []rules.Diagnostic{}
	}

	respondJSON(w, http.StatusOK, ValidateRuleResponse{
		Valid:       len(diags) == 0,
		Parsed:      prog.String(),
		Diagnostics: diags,
	})
}

// Account handlers

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts": s.manager.ListAccounts(),
	})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	acc, err := s.manager.CreateAccount(req.ID, req.Name)
	if err != nil {
		respondError(w, errorStatus(err), "failed to create account", err)
		return
	}

	logger.Info("Account created", "account_id", acc.ID)
	respondJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.manager.GetAccount(chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req RenameAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	acc, err := s.manager.RenameAccount(chi.URLParam(r, "accountId"), req.Name)
	if err != nil {
		respondError(w, errorStatus(err), "failed to rename account", err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if err := s.manager.DeleteAccount(accountID); err != nil {
		respondError(w, errorStatus(err), "failed to delete account", err)
		return
	}
	if err := s.recorder.DeleteAccount(r.Context(), accountID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete account history", err)
		return
	}

	logger.Info("Account deleted", "account_id", accountID)
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot and history handlers

func (s *Server) handleIngestSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if s.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "ingestion is disabled", nil)
		return
	}

	var snap rules.Snapshot
	if err := decodeJSON(w, r, &snap); err != nil {
		metrics.SnapshotsIngestedTotal.WithLabelValues("http", "rejected").Inc()
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if snap.AccountID == "" {
		snap.AccountID = accountID
	}
	if snap.AccountID != accountID {
		metrics.SnapshotsIngestedTotal.WithLabelValues("http", "rejected").Inc()
		respondError(w, http.StatusBadRequest, "snapshot belongs to another account",
			fmt.Errorf("accountId %q does not match path %q", snap.AccountID, accountID))
		return
	}

	if err := s.pipeline.Submit(r.Context(), &snap); err != nil {
		metrics.SnapshotsIngestedTotal.WithLabelValues("http", "rejected").Inc()
		respondError(w, errorStatus(err), "snapshot rejected", err)
		return
	}

	metrics.SnapshotsIngestedTotal.WithLabelValues("http", "accepted").Inc()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if _, err := s.manager.GetAccount(accountID); err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	snaps, err := s.recorder.Snapshots(r.Context(), accountID, chi.URLParam(r, "campaignId"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []*rules.Snapshot{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if _, err := s.manager.GetAccount(accountID); err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	actions, err := s.recorder.Actions(r.Context(), accountID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list actions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer, got %q", v)
	}
	return limit, nil
}

// Rule handlers

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	var req CreateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine, err := s.manager.GetEngine(accountID)
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}

	rule := &rules.Rule{
		AccountID:  accountID,
		CampaignID: req.CampaignID,
		Name:       req.Name,
		Action:     rules.Action(req.Action),
		Expression: req.Expression,
		Active:     req.Active == nil || *req.Active,
	}
	if err := accountengine.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}

	// AddRule assigns the ID and compiles the expression
	if err := engine.AddRule(rule); err != nil {
		respondError(w, errorStatus(err), "failed to add rule", err)
		return
	}

	logger.Info("Rule created", "account_id", accountID, "rule_id", rule.ID)
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}

	list, err := engine.ListRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}

	rule, err := engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, errorStatus(err), "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	ruleID := chi.URLParam(r, "ruleId")

	var req UpdateRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine, err := s.manager.GetEngine(accountID)
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}

	rule, err := engine.GetRule(ruleID)
	if err != nil {
		respondError(w, errorStatus(err), "rule not found", err)
		return
	}

	if req.CampaignID != nil {
		rule.CampaignID = *req.CampaignID
	}
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Action != nil {
		rule.Action = rules.Action(*req.Action)
	}
	if req.Expression != nil {
		rule.Expression = *req.Expression
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.AccountID = accountID

	if err := accountengine.ValidateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}
	if err := engine.UpdateRule(rule); err != nil {
		respondError(w, errorStatus(err), "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "accountId"))
	if err != nil {
		respondError(w, errorStatus(err), "account not found", err)
		return
	}

	if err := engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, errorStatus(err), "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
