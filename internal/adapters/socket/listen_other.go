//go:build !unix

package socket

import (
	"net"
	"os"
)

func listenUnix(path string) (net.Listener, error) {
	return net.Listen("unix", path)
}

func lockSocket(string) (*os.File, error) {
	return nil, nil
}
