package socket

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	FamilyIPv4 = "ipv4"
	FamilyIPv6 = "ipv6"
)

// returns the address family of a literal IP host
func Family(host string) (string, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid listen address %q", host)
	}
	if ip.To4() != nil {
		return FamilyIPv4, nil
	}
	return FamilyIPv6, nil
}

// creates a TCP socket for host's family, binds it to host:port and starts
// listening. IPv6 sockets are v6-only so an IPv4 listener on the same port
// can coexist.
func Listen(host string, port int) (net.Listener, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid listen address %q", host)
	}

	var (
		domain int
		sa     unix.Sockaddr
	)
	if ip4 := ip.To4(); ip4 != nil {
		addr := &unix.SockaddrInet4{Port: port}
		copy(addr.Addr[:], ip4)
		domain, sa = unix.AF_INET, addr
	} else {
		addr := &unix.SockaddrInet6{Port: port}
		copy(addr.Addr[:], ip.To16())
		domain, sa = unix.AF_INET6, addr
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket error: %w", err)
	}
	unix.CloseOnExec(fd)

	// allow socket reuse to avoid "address already in use" issues
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt error: %w", err)
	}

	if domain == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt error: %w", err)
		}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind error on %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen error: %w", err)
	}

	// hand the descriptor to the runtime poller; FileListener dups it
	f := os.NewFile(uintptr(fd), "listener")
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("file listener error: %w", err)
	}
	return ln, nil
}

// sets TCP_NODELAY so responses are sent immediately upon write
func SetClientOptions(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
