package dustdata

// Codec (de)serializes a collection's value type to and from the opaque
// byte payload the storage engine actually persists. A Collection is
// parameterized over Codec so the engine itself never inspects a value's
// shape, matching the "value (de)serialization is an external collaborator"
// boundary this package's core is built to.
type Codec[V any] interface {
	Marshal(V) ([]byte, error)
	Unmarshal([]byte) (V, error)
}

// BytesCodec is the identity codec for collections whose value type is
// already []byte.
type BytesCodec struct{}

func (BytesCodec) Marshal(v []byte) ([]byte, error) { return v, nil }

func (BytesCodec) Unmarshal(b []byte) ([]byte, error) { return b, nil }
