package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"farmchain/native/farming"
)

var errMissingID = errors.New("missing id parameter")

// balanceEntry renders a token amount pair with the amount as a decimal
// string, since 24-decimal balances overflow JSON numbers.
type balanceEntry struct {
	Key    string `json:"key"`
	Amount string `json:"amount"`
}

func balanceList(m map[string]*big.Int) []balanceEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]balanceEntry, 0, len(keys))
	for _, k := range keys {
		amount := "0"
		if v := m[k]; v != nil {
			amount = v.String()
		}
		out = append(out, balanceEntry{Key: k, Amount: amount})
	}
	return out
}

func (s *Server) handleFarm(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errMissingID)
		return
	}
	info, err := s.engine.FarmInfoByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFarmsBySeed(w http.ResponseWriter, r *http.Request) {
	seedID := strings.TrimSpace(r.URL.Query().Get("seed"))
	if seedID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing seed parameter"))
		return
	}
	infos, err := s.engine.FarmsBySeed(seedID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errMissingID)
		return
	}
	info, err := s.engine.SeedInfoByID(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSeeds(w http.ResponseWriter, r *http.Request) {
	ids, err := s.state.SeedIDs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	infos := make([]*farming.SeedInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.engine.SeedInfoByID(id)
		if err != nil {
			if errors.Is(err, farming.ErrSeedNotExist) {
				continue
			}
			writeError(w, statusFor(err), err)
			return
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	strategy, err := s.engine.CDStrategyTable()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, strategy.Items)
}

func (s *Server) handleLostFound(w http.ResponseWriter, r *http.Request) {
	balances, err := s.engine.LostFoundBalances()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceList(balances))
}

func (s *Server) handleUserSeeds(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	seeds, err := s.engine.UserSeeds(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceList(seeds))
}

func (s *Server) handleUserPowers(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	powers, err := s.engine.UserSeedPowers(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceList(powers))
}

func (s *Server) handleUserRewards(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	rewards, err := s.engine.UserRewards(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceList(rewards))
}

func (s *Server) handleUnclaimed(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	farmID := strings.TrimSpace(r.URL.Query().Get("farm"))
	if farmID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing farm parameter"))
		return
	}
	amount, err := s.engine.UnclaimedReward(account, farmID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"farmId": farmID, "amount": amount.String()})
}

func (s *Server) handleUserCD(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	accounts, err := s.engine.UserCDAccounts(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleUserStorage(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balance, err := s.engine.StorageBalanceOf(account)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if balance == nil {
		writeError(w, http.StatusNotFound, farming.ErrAccountNotRegistered)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account, "balance": balance.String()})
}

type sweepRequest struct {
	Token    string `json:"token"`
	Receiver string `json:"receiver"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Receiver) == "" {
		writeError(w, http.StatusBadRequest, errors.New("token and receiver are required"))
		return
	}
	s.mu.Lock()
	amount, err := s.engine.SweepLostFound(s.engine.Owner(), req.Token, req.Receiver)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    req.Token,
		"receiver": req.Receiver,
		"amount":   amount.String(),
	})
}
