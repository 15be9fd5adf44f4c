package peer

import (
	"strconv"
	"strings"

	"github.com/bardlex/noso2m/internal/nosohash"
	srverrors "github.com/bardlex/noso2m/pkg/errors"
)

// Submission result codes shared by nodes and pools. Anything above zero is a
// rejection; transport failures never produce a code.
const (
	CodeAccepted      = 0
	CodeWrongBlock    = 1
	CodeBadTimestamp  = 2
	CodeBadAddress    = 3
	CodeDuplicateHash = 4
	// CodeBuildingBlock means the network is still closing the previous block
	CodeBuildingBlock = 6
	CodeWrongBase     = 7
)

// RejectReason describes a rejection code
func RejectReason(code int) string {
	switch code {
	case CodeAccepted:
		return "accepted"
	case CodeWrongBlock:
		return "wrong block number"
	case CodeBadTimestamp:
		return "incorrect timestamp"
	case CodeBadAddress:
		return "invalid address"
	case CodeDuplicateHash:
		return "duplicate hash"
	case CodeBuildingBlock:
		return "network building block"
	case CodeWrongBase:
		return "wrong hash base"
	default:
		return "rejected"
	}
}

// NodeStatus holds the NODESTATUS fields the miner consumes
type NodeStatus struct {
	Block       uint32
	LastHash    string
	MinDiff     string
	LastTime    int64
	LastAddress string
}

// PoolInfo is a POOLINFO answer
type PoolInfo struct {
	Miners   uint32
	Hashrate uint64
	// Fee is in hundredths of a percent
	Fee uint32
}

// PoolStatus is a SOURCE answer
type PoolStatus struct {
	Prefix         string
	Address        string
	MinDiff        string
	LastHash       string
	Block          uint32
	TillBalance    uint64
	TillPayment    uint32
	PaymentBlock   uint32
	PaymentAmount  uint64
	PaymentOrderID string
	PoolHashrate   uint64
	NetHashrate    uint64
	Fee            uint32
}

// SubmitResult is a BESTHASH answer. Diff is the node's current best
// difficulty; Hash is only set when the solution was accepted.
type SubmitResult struct {
	Code int
	Diff string
	Hash string
}

// Accepted reports whether the node took the solution
func (r SubmitResult) Accepted() bool { return r.Code == CodeAccepted }

// TimestampRequest builds NSLTIME
func TimestampRequest() string { return "NSLTIME\n" }

// NodeStatusRequest builds NODESTATUS
func NodeStatusRequest() string { return "NODESTATUS\n" }

// PoolInfoRequest builds POOLINFO
func PoolInfoRequest() string { return "POOLINFO\n" }

// BestHashRequest builds a solo submission
func BestHashRequest(address, base string, block uint32, timestamp int64) string {
	sb := getBuilder()
	defer putBuilder(sb)

	sb.WriteString("BESTHASH 1 2 3 4 ")
	sb.WriteString(address)
	sb.WriteByte(' ')
	sb.WriteString(base)
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatUint(uint64(block), 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(timestamp, 10))
	sb.WriteByte('\n')
	return sb.String()
}

// SourceRequest builds a pool target request
func SourceRequest(address string) string {
	return "SOURCE " + address + " " + ClientID + "\n"
}

// ShareRequest builds a pool share submission
func ShareRequest(address, base string, block uint32) string {
	sb := getBuilder()
	defer putBuilder(sb)

	sb.WriteString("SHARE ")
	sb.WriteString(address)
	sb.WriteByte(' ')
	sb.WriteString(base)
	sb.WriteByte(' ')
	sb.WriteString(ClientID)
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatUint(uint64(block), 10))
	sb.WriteByte('\n')
	return sb.String()
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}

func protocolError(op, message, line string) error {
	return srverrors.New(srverrors.ErrorTypeProtocol, op, message).WithContext("response", line)
}

// ParseTimestamp parses an NSLTIME answer
func ParseTimestamp(line string) (int64, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, srverrors.Wrap(err, srverrors.ErrorTypeProtocol, "parse_timestamp", "timestamp is not a number")
	}
	return ts, nil
}

// ParseNodeStatus parses a NODESTATUS answer. Fields are separated by single
// spaces; indices 2, 10, 11, 12 and 13 are read.
func ParseNodeStatus(line string) (*NodeStatus, error) {
	const op = "parse_node_status"
	line = trimLine(line)
	fields := strings.Split(line, " ")
	if len(fields) < 14 {
		return nil, protocolError(op, "too few fields", line)
	}

	block, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, protocolError(op, "block number is not a number", line)
	}
	lastTime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return nil, protocolError(op, "last block time is not a number", line)
	}

	ns := &NodeStatus{
		Block:       uint32(block),
		LastHash:    fields[10],
		MinDiff:     fields[11],
		LastTime:    lastTime,
		LastAddress: fields[13],
	}
	if len(ns.LastHash) != nosohash.HashLen {
		return nil, protocolError(op, "wrong lb_hash length", line)
	}
	if len(ns.MinDiff) != nosohash.HashLen {
		return nil, protocolError(op, "wrong mn_diff length", line)
	}
	if !validAddressLen(ns.LastAddress) {
		return nil, protocolError(op, "wrong lb_addr length", line)
	}
	return ns, nil
}

// ParsePoolInfo parses a POOLINFO answer
func ParsePoolInfo(line string) (*PoolInfo, error) {
	const op = "parse_pool_info"
	line = trimLine(line)
	fields := strings.Split(line, " ")
	if len(fields) < 3 {
		return nil, protocolError(op, "too few fields", line)
	}

	miners, err1 := strconv.ParseUint(fields[0], 10, 32)
	hashrate, err2 := strconv.ParseUint(fields[1], 10, 64)
	fee, err3 := strconv.ParseUint(fields[2], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, protocolError(op, "non numeric field", line)
	}
	return &PoolInfo{Miners: uint32(miners), Hashrate: hashrate, Fee: uint32(fee)}, nil
}

// ParsePoolStatus parses a SOURCE answer:
//
//	OK prefix address mn_diff lb_hash block till_balance till_payment payment_info pool_hashrate mnet_hashrate pool_fee
//
// payment_info is empty or block:amount:orderId.
func ParsePoolStatus(line string) (*PoolStatus, error) {
	const op = "parse_pool_status"
	line = trimLine(line)
	fields := strings.Split(line, " ")
	if len(fields) < 12 {
		return nil, protocolError(op, "too few fields", line)
	}
	if fields[0] != "OK" {
		return nil, protocolError(op, "pool refused the request", line)
	}

	ps := &PoolStatus{
		Prefix:   fields[1],
		Address:  fields[2],
		MinDiff:  fields[3],
		LastHash: fields[4],
	}
	switch {
	case len(ps.Prefix) != 3:
		return nil, protocolError(op, "wrong pool prefix length", line)
	case !validAddressLen(ps.Address):
		return nil, protocolError(op, "wrong pool address length", line)
	case len(ps.MinDiff) != nosohash.HashLen:
		return nil, protocolError(op, "wrong pool diff length", line)
	case len(ps.LastHash) != nosohash.HashLen:
		return nil, protocolError(op, "wrong lb_hash length", line)
	}

	var errs [7]error
	var block, tillPayment, fee uint64
	block, errs[0] = strconv.ParseUint(fields[5], 10, 32)
	ps.TillBalance, errs[1] = strconv.ParseUint(fields[6], 10, 64)
	tillPayment, errs[2] = strconv.ParseUint(fields[7], 10, 32)
	ps.PoolHashrate, errs[3] = strconv.ParseUint(fields[9], 10, 64)
	ps.NetHashrate, errs[4] = strconv.ParseUint(fields[10], 10, 64)
	fee, errs[5] = strconv.ParseUint(fields[11], 10, 32)
	errs[6] = parsePaymentInfo(fields[8], ps)
	for _, err := range errs {
		if err != nil {
			return nil, protocolError(op, "non numeric field", line)
		}
	}
	ps.Block = uint32(block)
	ps.TillPayment = uint32(tillPayment)
	ps.Fee = uint32(fee)
	return ps, nil
}

func parsePaymentInfo(info string, ps *PoolStatus) error {
	if info == "" {
		return nil
	}
	parts := strings.SplitN(info, ":", 3)
	if len(parts) < 2 {
		return strconv.ErrSyntax
	}
	block, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return err
	}
	amount, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return err
	}
	ps.PaymentBlock = uint32(block)
	ps.PaymentAmount = amount
	if len(parts) == 3 {
		ps.PaymentOrderID = parts[2]
	}
	return nil
}

// ParseBestHashResult parses a BESTHASH answer, either
// "True <diff32> <hash32>" or "False <diff32> <code>".
func ParseBestHashResult(line string) (*SubmitResult, error) {
	const op = "parse_besthash"
	line = trimLine(line)

	switch {
	case len(line) >= 40 && strings.HasPrefix(line, "False ") && line[38] == ' ' &&
		line[39] >= '1' && line[39] <= '7':
		return &SubmitResult{Code: int(line[39] - '0'), Diff: line[6:38]}, nil
	case len(line) >= 70 && strings.HasPrefix(line, "True ") && line[37] == ' ':
		return &SubmitResult{Code: CodeAccepted, Diff: line[5:37], Hash: line[38:70]}, nil
	}
	return nil, protocolError(op, "unrecognised response", line)
}

// ParseShareResult parses a SHARE answer: "True" or "False <code>"
func ParseShareResult(line string) (int, error) {
	line = trimLine(line)
	switch {
	case strings.HasPrefix(line, "True"):
		return CodeAccepted, nil
	case len(line) >= 7 && strings.HasPrefix(line, "False ") && line[6] >= '1' && line[6] <= '7':
		return int(line[6] - '0'), nil
	}
	return 0, protocolError("parse_share", "unrecognised response", line)
}

func validAddressLen(addr string) bool {
	return len(addr) == 30 || len(addr) == 31
}
