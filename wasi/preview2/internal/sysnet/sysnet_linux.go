package sysnet

import "golang.org/x/sys/unix"

const tcpKeepIdle = unix.TCP_KEEPIDLE

func socket(domain int) (int, error) {
	for {
		fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
		if err != unix.EINTR {
			return fd, err
		}
	}
}

func accept(fd int) (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != unix.EINTR {
			return nfd, sa, err
		}
	}
}
