package tokenfeed

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Zero time clears a connection deadline.
var noDeadline time.Time

// RemoteDataset implements the retrieval contract against a sample
// server over TCP. The connection is established and the dataset length
// cached at dial time; afterwards requests are serialized over the one
// connection, which is safe for concurrent callers.
type RemoteDataset struct {
	mu           sync.Mutex
	conn         net.Conn
	rd           *bufio.Reader
	wr           *bufio.Writer
	numSequences uint64
}

// DialRemoteDataset connects to a sample server, declares the client's
// run and identity, and caches the dataset length. Connection-level
// failures surface as network errors; a server rejection as an
// unauthorized error.
func DialRemoteDataset(ctx context.Context, addr, runID, identity string) (*RemoteDataset, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}

	ds := &RemoteDataset{
		conn: conn,
		rd:   bufio.NewReader(conn),
		wr:   bufio.NewWriter(conn),
	}
	if err := ds.send(helloMsg{runID: runID, identity: identity}); err != nil {
		conn.Close()
		return nil, err
	}

	// The server only answers a hello when it rejects it, so probe with
	// a length request: the reply is either the length or the rejection.
	reply, err := ds.roundTrip(numSequencesMsg{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	length, ok := reply.(lengthMsg)
	if !ok {
		conn.Close()
		return nil, errorf(KindFraming, "unexpected %T reply to length request", reply)
	}
	ds.numSequences = length.n

	return ds, nil
}

func (ds *RemoteDataset) send(m message) error {
	if err := writeFrame(ds.wr, m); err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	if err := ds.wr.Flush(); err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	return nil
}

// roundTrip sends one request and reads one reply. Callers must hold
// the mutex, except during dial before the dataset escapes.
func (ds *RemoteDataset) roundTrip(m message) (message, error) {
	if err := ds.send(m); err != nil {
		return nil, err
	}
	reply, err := readFrame(ds.rd)
	if err != nil {
		if HasKind(err, KindFraming) {
			return nil, err
		}
		return nil, &Error{Kind: KindNetwork, Message: err.Error()}
	}
	if reject, ok := reply.(rejectMsg); ok {
		return nil, errorf(KindUnauthorized, "server rejected request: %s", reject.reason)
	}
	return reply, nil
}

// NumSequences reports the server dataset's length, as cached at dial
// time.
func (ds *RemoteDataset) NumSequences() uint64 {
	return ds.numSequences
}

// GetSamples requests the batch from the server and awaits the reply.
func (ds *RemoteDataset) GetSamples(ctx context.Context, br BatchRange) ([][]int32, error) {
	if err := br.validate(ds.numSequences); err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		ds.conn.SetDeadline(deadline)
		defer ds.conn.SetDeadline(noDeadline)
	}
	reply, err := ds.roundTrip(getSamplesMsg{br: br})
	if err != nil {
		return nil, fmt.Errorf("fetching [%d, %d]: %w", br.Start, br.End, err)
	}
	samples, ok := reply.(samplesMsg)
	if !ok {
		return nil, errorf(KindFraming, "unexpected %T reply to samples request", reply)
	}
	return samples.sequences, nil
}

// Close tears down the connection.
func (ds *RemoteDataset) Close() error {
	return ds.conn.Close()
}
