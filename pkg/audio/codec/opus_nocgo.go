//go:build !cgo

package codec

func newOpusCodec(Config) (frameCodec, error) {
	return nil, errOpusUnavailable
}
