// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"strconv"
	"strings"
)

// DomainKind is the closed set of energy measurement points a device can expose
type DomainKind int

const (
	KindPackage DomainKind = iota
	KindDRAM
	KindPsys
)

func (k DomainKind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindDRAM:
		return "dram"
	case KindPsys:
		return "psys"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Domain identifies a single energy counter: a package die or DRAM controller
// of one socket, or the machine-wide platform rail (psys).
// Domains are comparable; two domains are equal iff kind and socket match.
type Domain struct {
	Kind   DomainKind
	Socket int
}

// PackageDomain returns the CPU package domain of the given socket
func PackageDomain(socket int) Domain {
	return Domain{Kind: KindPackage, Socket: socket}
}

// DRAMDomain returns the DRAM domain of the given socket
func DRAMDomain(socket int) Domain {
	return Domain{Kind: KindDRAM, Socket: socket}
}

// PsysDomain returns the platform domain. It is not scoped to a socket.
func PsysDomain() Domain {
	return Domain{Kind: KindPsys}
}

// String returns the display name used as sample label e.g. package_0, dram_1, psys
func (d Domain) String() string {
	if d.Kind == KindPsys {
		return d.Kind.String()
	}
	return fmt.Sprintf("%s_%d", d.Kind, d.Socket)
}

// ParseDomain parses a display name back into a Domain.
// Both "package_0" and the kernel style "package-0" are accepted.
func ParseDomain(name string) (Domain, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == KindPsys.String() {
		return PsysDomain(), nil
	}

	sep := strings.LastIndexAny(s, "_-")
	if sep <= 0 || sep == len(s)-1 {
		return Domain{}, fmt.Errorf("invalid domain %q: expected <kind>_<socket> or psys", name)
	}

	socket, err := strconv.Atoi(s[sep+1:])
	if err != nil || socket < 0 {
		return Domain{}, fmt.Errorf("invalid domain %q: bad socket index", name)
	}

	switch s[:sep] {
	case KindPackage.String():
		return PackageDomain(socket), nil
	case KindDRAM.String():
		return DRAMDomain(socket), nil
	default:
		return Domain{}, fmt.Errorf("invalid domain %q: unknown kind %q", name, s[:sep])
	}
}

// ParseDomains parses every name and fails on the first invalid one
func ParseDomains(names []string) ([]Domain, error) {
	domains := make([]Domain, 0, len(names))
	for _, name := range names {
		d, err := ParseDomain(name)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, nil
}
