package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"findprotocol/native/launch"
)

type launchCreateParams struct {
	Caller      string `json:"caller"`
	ProjectID   string `json:"projectId"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name,omitempty"`
	Decimals    uint8  `json:"decimals,omitempty"`
	MaxSupply   string `json:"maxSupply,omitempty"`
	PoolFeePpm  uint32 `json:"poolFeePpm,omitempty"`
	MintForPool string `json:"mintForPool,omitempty"`
	BaseForPool string `json:"baseForPool,omitempty"`
	Sig         string `json:"sig"`
}

type projectResult struct {
	ProjectID  string `json:"projectId"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name,omitempty"`
	Creator    string `json:"creator"`
	Owner      string `json:"owner"`
	Asset      string `json:"asset"`
	MaxSupply  string `json:"maxSupply"`
	PoolFeePpm uint32 `json:"poolFeePpm"`
	CreatedAt  uint64 `json:"createdAt"`
}

func formatProject(p *launch.Project) *projectResult {
	if p == nil {
		return nil
	}
	return &projectResult{
		ProjectID:  p.ID,
		Symbol:     p.Symbol,
		Name:       p.Name,
		Creator:    formatAddress(p.Creator),
		Owner:      formatAddress(p.Owner),
		Asset:      formatAddress(p.Asset),
		MaxSupply:  p.MaxSupply.String(),
		PoolFeePpm: p.PoolFeePpm,
		CreatedAt:  p.CreatedAt,
	}
}

func (s *Server) handleLaunchCreate(w http.ResponseWriter, req *RPCRequest) int {
	var params launchCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.Sig), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", err.Error())
		return http.StatusBadRequest
	}
	maxSupply, err := parseOptionalAmount(params.MaxSupply)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxSupply", err.Error())
		return http.StatusBadRequest
	}
	mintForPool, err := parseOptionalAmount(params.MintForPool)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid mintForPool", err.Error())
		return http.StatusBadRequest
	}
	baseForPool, err := parseOptionalAmount(params.BaseForPool)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid baseForPool", err.Error())
		return http.StatusBadRequest
	}
	project, err := s.deps.Launcher.Launch(caller, launch.Params{
		ProjectID:   params.ProjectID,
		Symbol:      strings.TrimSpace(params.Symbol),
		Name:        params.Name,
		Decimals:    params.Decimals,
		MaxSupply:   maxSupply,
		PoolFeePpm:  params.PoolFeePpm,
		MintForPool: mintForPool,
		BaseForPool: baseForPool,
		Sig:         sig,
	})
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatProject(project))
	return http.StatusOK
}

type claimOwnershipParams struct {
	Caller    string `json:"caller"`
	ProjectID string `json:"projectId"`
	NewOwner  string `json:"newOwner"`
}

func (s *Server) handleClaimOwnership(w http.ResponseWriter, req *RPCRequest) int {
	var params claimOwnershipParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return http.StatusBadRequest
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid newOwner", err.Error())
		return http.StatusBadRequest
	}
	if err := s.deps.Launcher.ClaimOwnership(params.ProjectID, caller, newOwner); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return http.StatusOK
}

type getProjectParams struct {
	ProjectID string `json:"projectId"`
}

func (s *Server) handleGetProject(w http.ResponseWriter, req *RPCRequest) int {
	var params getProjectParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return http.StatusBadRequest
	}
	project, ok, err := s.deps.Launcher.Project(params.ProjectID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "project not found", params.ProjectID)
		return http.StatusNotFound
	}
	writeResult(w, req.ID, formatProject(project))
	return http.StatusOK
}
