package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"time"
)

const (
	// ProtocolID is the fixed connection id of a BEP 15 connect request.
	ProtocolID uint64 = 0x41727101980

	ActionConnect uint32 = 0
	ActionError   uint32 = 3

	connectPacketLen = 16
	maxDatagramLen   = 2048

	DefaultTimeout = 5 * time.Second
)

// ConnectResponse is the decoded reply to a connect request.
type ConnectResponse struct {
	Action        uint32
	TransactionID uint32
	ConnectionID  uint64
	Message       string // trailing text of an error (action 3) reply
}

// EncodeConnectRequest builds the 16 byte connect request:
// u64 protocol id, u32 action, u32 transaction id, all big-endian.
func EncodeConnectRequest(transactionID uint32) []byte {
	buf := make([]byte, connectPacketLen)
	binary.BigEndian.PutUint64(buf[0:8], ProtocolID)
	binary.BigEndian.PutUint32(buf[8:12], ActionConnect)
	binary.BigEndian.PutUint32(buf[12:16], transactionID)
	return buf
}

// EncodeConnectResponse builds a connect reply. Used by test responders.
func EncodeConnectResponse(resp ConnectResponse) []byte {
	buf := make([]byte, connectPacketLen, connectPacketLen+len(resp.Message))
	binary.BigEndian.PutUint32(buf[0:4], resp.Action)
	binary.BigEndian.PutUint32(buf[4:8], resp.TransactionID)
	binary.BigEndian.PutUint64(buf[8:16], resp.ConnectionID)
	return append(buf, resp.Message...)
}

// DecodeConnectRequest parses a connect request. Used by test responders.
func DecodeConnectRequest(b []byte) (transactionID uint32, err error) {
	if len(b) < connectPacketLen {
		return 0, fmt.Errorf("connect request too short: %d bytes", len(b))
	}
	if id := binary.BigEndian.Uint64(b[0:8]); id != ProtocolID {
		return 0, fmt.Errorf("unexpected protocol id %#x", id)
	}
	if action := binary.BigEndian.Uint32(b[8:12]); action != ActionConnect {
		return 0, fmt.Errorf("unexpected action %d", action)
	}
	return binary.BigEndian.Uint32(b[12:16]), nil
}

// DecodeConnectResponse parses the first 16 bytes of a reply: u32 action,
// u32 transaction id, u64 connection id.
func DecodeConnectResponse(b []byte) (ConnectResponse, error) {
	if len(b) < connectPacketLen {
		return ConnectResponse{}, fmt.Errorf("connect response too short: %d bytes", len(b))
	}
	resp := ConnectResponse{
		Action:        binary.BigEndian.Uint32(b[0:4]),
		TransactionID: binary.BigEndian.Uint32(b[4:8]),
		ConnectionID:  binary.BigEndian.Uint64(b[8:16]),
	}
	if resp.Action == ActionError {
		// error replies carry the message right after the transaction id
		resp.Message = string(b[8:])
		resp.ConnectionID = 0
	}
	return resp, nil
}

// ValidateConnectResponse checks a reply against the transaction id that was sent.
func ValidateConnectResponse(b []byte, transactionID uint32) error {
	resp, err := DecodeConnectResponse(b)
	if err != nil {
		return err
	}
	if resp.Action == ActionError {
		return fmt.Errorf("invalid connection response: tracker error %q", resp.Message)
	}
	if resp.Action != ActionConnect {
		return fmt.Errorf("invalid connection response: action %d", resp.Action)
	}
	if resp.TransactionID != transactionID {
		return fmt.Errorf("invalid connection response: transaction id %d, want %d",
			resp.TransactionID, transactionID)
	}
	return nil
}

// UDPProber performs the UDP tracker connect handshake.
type UDPProber struct {
	timeout  time.Duration
	listener net.ListenConfig
	resolver *net.Resolver

	// transactionID is swapped in tests
	transactionID func() uint32
}

// NewUDPProber creates a UDP prober bounded by timeout per attempt.
func NewUDPProber(timeout time.Duration) *UDPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UDPProber{
		timeout:       timeout,
		resolver:      net.DefaultResolver,
		transactionID: rand.Uint32,
	}
}

// ProbeUDP sends one connect request to host:port and waits for one reply.
// There is no retransmission: a missing reply is a timeout failure.
// The socket is unconnected, so a reply from another address of a
// multi-homed tracker is still accepted.
func (p *UDPProber) ProbeUDP(ctx context.Context, host string, port int) Outcome {
	if host == "" {
		return Defect(errors.New("udp probe called without a host"))
	}
	if port < 1 || port > 65535 {
		return Defect(fmt.Errorf("udp probe called with invalid port %d", port))
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Failure(newProbeError(target, err))
	}
	if len(addrs) == 0 {
		return Failure(&ProbeError{Type: ErrorTypeNetwork, Endpoint: target, Err: fmt.Errorf("no address for %s", host)})
	}
	ip := addrs[0].Unmap()
	network := "udp6"
	if ip.Is4() {
		network = "udp4"
	}
	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port)))

	conn, err := p.listener.ListenPacket(ctx, network, ":0")
	if err != nil {
		return Failure(newProbeError(target, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// unblock the read when the run itself is cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	txID := p.transactionID()
	if _, err := conn.WriteTo(EncodeConnectRequest(txID), dst); err != nil {
		return Failure(newProbeError(target, err))
	}

	buf := make([]byte, maxDatagramLen)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure(newProbeError(target, ctx.Err()))
		}
		return Failure(newProbeError(target, err))
	}

	if err := ValidateConnectResponse(buf[:n], txID); err != nil {
		return Failure(&ProbeError{Type: ErrorTypeProtocolValidation, Endpoint: target, Err: err})
	}
	return Success()
}
