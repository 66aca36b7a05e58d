// Package rpc exposes account provisioning over gRPC.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/logger"
	"github.com/example/coop-ledger/internal/security"
)

// Provisioner is the ledger surface served over gRPC.
type Provisioner interface {
	Open(ctx context.Context, actor ledger.Actor, req ledger.OpenAccountRequest) (*ledger.OpenAccountResult, error)
	GetVoucher(ctx context.Context, actor ledger.Actor, voucherID int64) (*ledger.Voucher, error)
	VerifyVoucher(ctx context.Context, actor ledger.Actor, voucherID int64) (*ledger.Voucher, error)
}

type Server struct {
	UnimplementedProvisioningServer

	ledger Provisioner
	log    *zap.Logger
}

func NewServer(p Provisioner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{ledger: p, log: log}
}

// maxExactID is the largest integer a Struct number (a double) carries exactly.
const maxExactID = 1 << 53

// wireID is an integer field of a Struct message. Numbers must be integral
// and within ±2^53; larger ids are sent as decimal strings.
type wireID int64

func (id *wireID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q is not an integer", s)
		}
		*id = wireID(n)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("id %s is not a number", data)
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactID {
		return fmt.Errorf("id %s is not an integer within ±2^53, send it as a string", data)
	}
	*id = wireID(f)
	return nil
}

type openAccountRequest struct {
	AccountType      string              `json:"account_type"`
	ProductID        wireID              `json:"product_id"`
	AccountNo        string              `json:"account_no"`
	Suffix           wireID              `json:"suffix"`
	Name             string              `json:"name"`
	MemberID         wireID              `json:"member_id"`
	OpenedOn         string              `json:"opened_on"`
	Ownership        ledger.OwnershipSet `json:"ownership"`
	OpeningAmount    decimal.Decimal     `json:"opening_amount"`
	EntryType        string              `json:"entry_type"`
	FundingAccountID wireID              `json:"funding_account_id"`
	Narration        string              `json:"narration"`
}

type voucherRequest struct {
	VoucherID wireID `json:"voucher_id"`
}

func (s *Server) OpenAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req openAccountRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	openReq := ledger.OpenAccountRequest{
		Type:             ledger.AccountType(req.AccountType),
		ProductID:        int64(req.ProductID),
		AccountNo:        req.AccountNo,
		Suffix:           int64(req.Suffix),
		Name:             req.Name,
		MemberID:         int64(req.MemberID),
		Ownership:        req.Ownership,
		OpeningAmount:    req.OpeningAmount,
		EntryType:        ledger.EntryType(req.EntryType),
		FundingAccountID: int64(req.FundingAccountID),
		Narration:        req.Narration,
	}
	for _, r := range openReq.Ownership.Records() {
		if r.MemberID > maxExactID || r.MemberID < -maxExactID {
			return nil, status.Error(codes.InvalidArgument, "ownership member_id exceeds 2^53")
		}
	}
	if req.OpenedOn != "" {
		d, err := time.Parse(time.DateOnly, req.OpenedOn)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "opened_on is not a calendar date")
		}
		openReq.OpenedOn = d
	}

	res, err := s.ledger.Open(ctx, actorFrom(ctx), openReq)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return encodeStruct(res)
}

func (s *Server) GetVoucher(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req voucherRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	v, err := s.ledger.GetVoucher(ctx, actorFrom(ctx), int64(req.VoucherID))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return encodeStruct(map[string]any{"voucher": v})
}

func (s *Server) VerifyVoucher(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req voucherRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	v, err := s.ledger.VerifyVoucher(ctx, actorFrom(ctx), int64(req.VoucherID))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return encodeStruct(map[string]any{"voucher": v})
}

func actorFrom(ctx context.Context) ledger.Actor {
	actor, _ := auth.ActorFromContext(ctx)
	return actor
}

// toStatus maps a ledger error to a gRPC status. Persistence failures are
// logged and reported without their cause.
func (s *Server) toStatus(ctx context.Context, err error) error {
	var (
		dup       *ledger.DuplicateError
		misconf   *ledger.MisconfiguredProductError
		invalid   *ledger.InvalidRequestError
		inUse     *ledger.AccountInUseError
		badStatus *ledger.InvalidStatusTransitionError
		self      *ledger.SelfVerificationError
	)
	switch {
	case errors.As(err, &dup):
		return status.Error(codes.AlreadyExists, dup.Error())
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, invalid.Error())
	case errors.As(err, &misconf):
		return status.Error(codes.FailedPrecondition, misconf.Error())
	case errors.As(err, &inUse):
		return status.Error(codes.FailedPrecondition, inUse.Error())
	case errors.As(err, &badStatus):
		return status.Error(codes.FailedPrecondition, badStatus.Error())
	case errors.As(err, &self):
		return status.Error(codes.FailedPrecondition, self.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	}

	logger.WithContext(ctx, s.log).Error("rpc failed",
		zap.String("cid", security.CorrelationIDFromContext(ctx)),
		zap.Error(err),
	)
	return status.Error(codes.Internal, "the request could not be completed")
}

func decodeStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
