//go:build !(darwin || freebsd || linux)

package native

func openShared(string) (Library, error) {
	return nil, ErrNotSupported
}
