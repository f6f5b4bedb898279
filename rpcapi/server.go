package rpcapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/massaaddr"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/internal/xlog"
	"github.com/qdrn/massa/types"
)

// maxRequestBytes bounds a single JSON-RPC request body.
const maxRequestBytes = 1 << 20

// Request is a parsed JSON-RPC 2.0 request. Params is positional, mirroring
// the teacher's node.RPCRequest shape.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Err            `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Err is a JSON-RPC error object.
type Err struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errResponse(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", Error: &Err{Code: code, Message: msg}, ID: id}
}

func okResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: id}
}

// methodFunc handles one RPC method's already-unwrapped params, returning a
// JSON-marshalable result or an error.
type methodFunc func(params []json.RawMessage) (interface{}, error)

// Server fronts a Backend with the methods of spec.md §6.1 over JSON-RPC.
type Server struct {
	backend Backend
	met     *metrics.Metrics
	log     *xlog.Logger
	routes  map[string]methodFunc
}

// NewServer constructs a Server dispatching to backend. met may be nil.
func NewServer(backend Backend, met *metrics.Metrics) *Server {
	s := &Server{
		backend: backend,
		met:     met,
		log:     xlog.Default().Module("rpcapi"),
		routes:  make(map[string]methodFunc),
	}
	s.routes["get_final_and_candidate_balance"] = s.getFinalAndCandidateBalance
	s.routes["get_final_and_candidate_rolls"] = s.getFinalAndCandidateRolls
	s.routes["get_final_and_candidate_datastore_entry"] = s.getFinalAndCandidateDatastoreEntry
	s.routes["get_filtered_events"] = s.getFilteredEvents
	s.routes["execute_readonly"] = s.executeReadonly
	s.routes["get_cycle_active_rolls"] = s.getCycleActiveRolls
	s.routes["compute_operation_id"] = s.computeOperationId
	return s
}

// Router builds an httprouter.Router serving the JSON-RPC endpoint at
// POST /rpc and, when metrics are enabled, the Prometheus exposition
// endpoint at GET /metrics — the real-library equivalent of the teacher's
// RPCHandler fronted directly by net/http.
func (s *Server) Router() *httprouter.Router {
	r := httprouter.New()
	r.POST("/rpc", func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.ServeHTTP(w, req)
	})
	if s.met != nil {
		handler := s.met.Handler()
		r.GET("/metrics", func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
			handler.ServeHTTP(w, req)
		})
	}
	return r
}

// ServeHTTP implements http.Handler for the /rpc endpoint directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil || int64(len(body)) > maxRequestBytes {
		s.writeJSON(w, errResponse(nil, -32600, "request body missing or too large"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, errResponse(nil, -32700, "parse error: invalid JSON"))
		return
	}

	s.writeJSON(w, s.dispatch(req))
}

func (s *Server) dispatch(req Request) *Response {
	start := time.Now()
	handler, ok := s.routes[req.Method]
	if !ok {
		return errResponse(req.ID, -32601, "method not found: "+req.Method)
	}

	result, err := handler(req.Params)
	s.log.Debug("rpc call", "method", req.Method, "elapsed", time.Since(start), "err", err)
	if err != nil {
		return errResponse(req.ID, -32000, err.Error())
	}
	return okResponse(req.ID, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// --- param/result DTOs and handlers ---

func param0(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("missing parameters")
	}
	return json.Unmarshal(params[0], v)
}

func parseAddr(s string) (types.Address, error) {
	b, err := hex.DecodeString(trimAddrPrefix(s))
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return types.BytesToAddress(b), nil
}

func trimAddrPrefix(s string) string {
	if len(s) > 0 && s[0] == 'A' {
		return s[1:]
	}
	return s
}

// parseAmount parses a decimal mantissa string as produced by Amount.String.
// Empty input is treated as zero so optional amount fields can be omitted.
func parseAmount(s string) (amount.Amount, error) {
	if s == "" {
		return amount.Zero, nil
	}
	m, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return amount.Zero, fmt.Errorf("invalid amount: %w", err)
	}
	return amount.FromMantissa(m), nil
}

type balanceParams struct {
	Addr string `json:"addr"`
}

type balanceResult struct {
	Final     *string `json:"final,omitempty"`
	Candidate *string `json:"candidate,omitempty"`
}

func (s *Server) getFinalAndCandidateBalance(params []json.RawMessage) (interface{}, error) {
	var p balanceParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddr(p.Addr)
	if err != nil {
		return nil, err
	}
	res := balanceResult{}
	if bal, ok := s.backend.FinalBalance(addr); ok {
		v := bal.String()
		res.Final = &v
	}
	if bal, ok := s.backend.CandidateBalance(addr); ok {
		v := bal.String()
		res.Candidate = &v
	}
	return res, nil
}

type rollsResult struct {
	Final     uint64 `json:"final"`
	Candidate uint64 `json:"candidate"`
}

func (s *Server) getFinalAndCandidateRolls(params []json.RawMessage) (interface{}, error) {
	var p balanceParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddr(p.Addr)
	if err != nil {
		return nil, err
	}
	return rollsResult{
		Final:     s.backend.FinalRolls(addr),
		Candidate: s.backend.CandidateRolls(addr),
	}, nil
}

type datastoreParams struct {
	Addr string `json:"addr"`
	Key  string `json:"key"`
}

type datastoreResult struct {
	Final     *string `json:"final,omitempty"`
	Candidate *string `json:"candidate,omitempty"`
}

func (s *Server) getFinalAndCandidateDatastoreEntry(params []json.RawMessage) (interface{}, error) {
	var p datastoreParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddr(p.Addr)
	if err != nil {
		return nil, err
	}
	res := datastoreResult{}
	if v, ok := s.backend.FinalDatastoreEntry(addr, p.Key); ok {
		h := hex.EncodeToString(v)
		res.Final = &h
	}
	if v, ok := s.backend.CandidateDatastoreEntry(addr, p.Key); ok {
		h := hex.EncodeToString(v)
		res.Candidate = &h
	}
	return res, nil
}

type slotDTO struct {
	Period uint64 `json:"period"`
	Thread uint8  `json:"thread"`
}

type eventsParams struct {
	SlotStart   *slotDTO `json:"slot_start,omitempty"`
	SlotEnd     *slotDTO `json:"slot_end,omitempty"`
	EmitterAddr *string  `json:"emitter_addr,omitempty"`
	CallerAddr  *string  `json:"caller_addr,omitempty"`
	OpID        *string  `json:"op_id,omitempty"`
	IsFinal     *bool    `json:"is_final,omitempty"`
}

type eventDTO struct {
	IndexInSlot uint64  `json:"index_in_slot"`
	Slot        slotDTO `json:"slot"`
	Emitter     string  `json:"emitter"`
	Caller      *string `json:"caller,omitempty"`
	OriginOp    *string `json:"origin_op,omitempty"`
	Data        string  `json:"data"`
	IsError     bool    `json:"is_error"`
}

func (s *Server) getFilteredEvents(params []json.RawMessage) (interface{}, error) {
	var p eventsParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}

	filter := EventFilter{IsFinal: p.IsFinal}
	if p.SlotStart != nil {
		sl := types.NewSlot(p.SlotStart.Period, p.SlotStart.Thread)
		filter.SlotStart = &sl
	}
	if p.SlotEnd != nil {
		sl := types.NewSlot(p.SlotEnd.Period, p.SlotEnd.Thread)
		filter.SlotEnd = &sl
	}
	if p.EmitterAddr != nil {
		a, err := parseAddr(*p.EmitterAddr)
		if err != nil {
			return nil, err
		}
		filter.EmitterAddr = &a
	}
	if p.CallerAddr != nil {
		a, err := parseAddr(*p.CallerAddr)
		if err != nil {
			return nil, err
		}
		filter.CallerAddr = &a
	}
	if p.OpID != nil {
		b, err := hex.DecodeString(*p.OpID)
		if err != nil {
			return nil, fmt.Errorf("invalid op_id: %w", err)
		}
		id := types.BytesToOperationId(b)
		filter.OpID = &id
	}

	events := FilteredEvents(s.backend, filter)
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		d := eventDTO{
			IndexInSlot: e.IndexInSlot,
			Slot:        slotDTO{Period: e.Slot.Period, Thread: e.Slot.Thread},
			Emitter:     e.Emitter.String(),
			Data:        e.Data,
			IsError:     e.IsError,
		}
		if e.Caller != nil {
			c := e.Caller.String()
			d.Caller = &c
		}
		if e.OriginOp != nil {
			o := e.OriginOp.String()
			d.OriginOp = &o
		}
		out = append(out, d)
	}
	return out, nil
}

type readonlyParams struct {
	Sender     string  `json:"sender"`
	TargetAddr *string `json:"target_addr,omitempty"`
	Bytecode   string  `json:"bytecode"`
	MaxGas     uint64  `json:"max_gas"`
}

type readonlyResult struct {
	Events []eventDTO `json:"events"`
}

func (s *Server) executeReadonly(params []json.RawMessage) (interface{}, error) {
	var p readonlyParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}
	sender, err := parseAddr(p.Sender)
	if err != nil {
		return nil, err
	}
	var target *types.Address
	if p.TargetAddr != nil {
		a, err := parseAddr(*p.TargetAddr)
		if err != nil {
			return nil, err
		}
		target = &a
	}
	bytecode, err := hex.DecodeString(p.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}

	out, err := s.backend.ExecuteReadonly(sender, target, bytecode, p.MaxGas)
	if err != nil {
		return nil, err
	}

	res := readonlyResult{Events: make([]eventDTO, 0, len(out.Events))}
	for _, e := range out.Events {
		d := eventDTO{
			IndexInSlot: e.IndexInSlot,
			Slot:        slotDTO{Period: e.Slot.Period, Thread: e.Slot.Thread},
			Emitter:     e.Emitter.String(),
			Data:        e.Data,
			IsError:     e.IsError,
		}
		res.Events = append(res.Events, d)
	}
	return res, nil
}

type cycleRollsParams struct {
	Cycle uint64 `json:"cycle"`
}

func (s *Server) getCycleActiveRolls(params []json.RawMessage) (interface{}, error) {
	var p cycleRollsParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}
	rolls := s.backend.CycleActiveRolls(p.Cycle)
	out := make(map[string]uint64, len(rolls))
	for addr, n := range rolls {
		out[addr.String()] = n
	}
	return out, nil
}

// operationParams mirrors types.Operation for content-hash derivation.
// Amounts and the recipient/target are optional since only the fields
// relevant to Kind need to be populated, matching types.Operation itself.
type operationParams struct {
	Sender        string  `json:"sender"`
	Fee           string  `json:"fee"`
	MaxGas        uint64  `json:"max_gas"`
	ExpirePeriod  uint64  `json:"expire_period"`
	Kind          int     `json:"kind"`
	Recipient     *string `json:"recipient,omitempty"`
	Amount        *string `json:"amount,omitempty"`
	RollCount     uint64  `json:"roll_count,omitempty"`
	Bytecode      string  `json:"bytecode,omitempty"`
	TargetAddr    *string `json:"target_addr,omitempty"`
	TargetHandler string  `json:"target_handler,omitempty"`
	Param         string  `json:"param,omitempty"`
	Coins         *string `json:"coins,omitempty"`
}

type operationIdResult struct {
	OperationId string `json:"operation_id"`
}

// computeOperationId derives the canonical OperationId of a not-yet-submitted
// operation from its content, the JSON-RPC counterpart of a client computing
// a transaction hash before broadcast.
func (s *Server) computeOperationId(params []json.RawMessage) (interface{}, error) {
	var p operationParams
	if err := param0(params, &p); err != nil {
		return nil, err
	}

	sender, err := parseAddr(p.Sender)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount(p.Fee)
	if err != nil {
		return nil, err
	}
	op := types.Operation{
		Sender:        sender,
		Fee:           fee,
		MaxGas:        p.MaxGas,
		ExpirePeriod:  p.ExpirePeriod,
		Kind:          types.OperationKind(p.Kind),
		RollCount:     p.RollCount,
		TargetHandler: p.TargetHandler,
	}
	if p.Recipient != nil {
		a, err := parseAddr(*p.Recipient)
		if err != nil {
			return nil, err
		}
		op.Recipient = a
	}
	if p.Amount != nil {
		a, err := parseAmount(*p.Amount)
		if err != nil {
			return nil, err
		}
		op.Amount = a
	}
	if p.Bytecode != "" {
		b, err := hex.DecodeString(p.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode: %w", err)
		}
		op.Bytecode = b
	}
	if p.TargetAddr != nil {
		a, err := parseAddr(*p.TargetAddr)
		if err != nil {
			return nil, err
		}
		op.TargetAddr = a
	}
	if p.Param != "" {
		b, err := hex.DecodeString(p.Param)
		if err != nil {
			return nil, fmt.Errorf("invalid param: %w", err)
		}
		op.Param = b
	}
	if p.Coins != nil {
		c, err := parseAmount(*p.Coins)
		if err != nil {
			return nil, err
		}
		op.Coins = c
	}

	id := massaaddr.DeriveOperationId(op)
	return operationIdResult{OperationId: id.String()}, nil
}
