// Package cityhash is a self-contained implementation of the public
// CityHash64 algorithm (Google's CityHash v1.0.3, 64-bit variant, unseeded).
//
// HashFS treats path hashing as an external collaborator referenced solely
// through an interface (see pkg/hashfs.PathHasher); this package supplies
// the default implementation so the library is usable without requiring
// every caller to bring their own hasher.
package cityhash

import "encoding/binary"

const (
	k0 = 0xc3a5c85c97cb3127
	k1 = 0xb492b66fbe98f273
	k2 = 0x9ae16a3b2f90404f
	k3 = 0xc949d7c7509e6557

	kMul = 0x9ddfea08eb382d69
)

func fetch64(s []byte) uint64 { return binary.LittleEndian.Uint64(s) }
func fetch32(s []byte) uint32 { return binary.LittleEndian.Uint32(s) }

func rotate(val uint64, shift uint) uint64 {
	if shift == 0 {
		return val
	}
	return (val >> shift) | (val << (64 - shift))
}

// rotateByAtLeast1 rotates by shift%64, treating a shift of 0 as 1. CityHash
// relies on this to avoid a no-op rotate when len is a multiple of 64.
func rotateByAtLeast1(val uint64, shift uint) uint64 {
	shift %= 64
	if shift == 0 {
		shift = 1
	}
	return (val >> shift) | (val << (64 - shift))
}

func shiftMix(val uint64) uint64 {
	return val ^ (val >> 47)
}

// hash128to64 folds a 128-bit value (lo, hi) down to 64 bits.
func hash128to64(lo, hi uint64) uint64 {
	a := (lo ^ hi) * kMul
	a ^= a >> 47
	b := (hi ^ a) * kMul
	b ^= b >> 47
	b *= kMul
	return b
}

func hashLen16(u, v uint64) uint64 {
	return hash128to64(u, v)
}

func hashLen0to16(s []byte) uint64 {
	n := uint(len(s))
	switch {
	case n > 8:
		a := fetch64(s)
		b := fetch64(s[len(s)-8:])
		return hashLen16(a, rotateByAtLeast1(b+uint64(n), n)) ^ b
	case n >= 4:
		a := fetch32(s)
		return hashLen16(uint64(n)+(uint64(a)<<3), uint64(fetch32(s[len(s)-4:])))
	case n > 0:
		a := s[0]
		b := s[n>>1]
		c := s[n-1]
		y := uint32(a) + uint32(b)<<8
		z := uint32(n) + uint32(c)<<2
		return shiftMix(uint64(y)*k2^uint64(z)*k3) * k2
	default:
		return k2
	}
}

func hashLen17to32(s []byte) uint64 {
	n := len(s)
	a := fetch64(s) * k1
	b := fetch64(s[8:])
	c := fetch64(s[n-8:]) * k2
	d := fetch64(s[n-16:]) * k0
	return hashLen16(
		rotate(a-b, 43)+rotate(c, 30)+d,
		a+rotate(b^k3, 20)-c+uint64(n),
	)
}

func weakHashLen32WithSeeds(w, x, y, z, a, b uint64) (uint64, uint64) {
	a += w
	b = rotate(b+a+z, 21)
	c := a
	a += x
	a += y
	b += rotate(a, 44)
	return a + z, b + c
}

func weakHashLen32WithSeedsBytes(s []byte, a, b uint64) (uint64, uint64) {
	return weakHashLen32WithSeeds(fetch64(s), fetch64(s[8:]), fetch64(s[16:]), fetch64(s[24:]), a, b)
}

func hashLen33to64(s []byte) uint64 {
	n := len(s)
	z := fetch64(s[24:])
	a := fetch64(s) + (uint64(n)+fetch64(s[n-16:]))*k0
	b := rotate(a+z, 52)
	c := rotate(a, 37)
	a += fetch64(s[8:])
	c += rotate(a, 7)
	a += fetch64(s[16:])
	vf := a + z
	vs := b + rotate(a, 31) + c

	a = fetch64(s[16:]) + fetch64(s[n-32:])
	z = fetch64(s[n-8:])
	b = rotate(a+z, 52)
	c = rotate(a, 37)
	a += fetch64(s[n-24:])
	c += rotate(a, 7)
	a += fetch64(s[n-16:])
	wf := a + z
	ws := b + rotate(a, 31) + c

	r := shiftMix((vf+ws)*k0 + (wf+vs)*k1)
	return shiftMix(r*k0+vs) * k1
}

// Hash64 computes the unseeded 64-bit CityHash of s.
func Hash64(s []byte) uint64 {
	n := len(s)
	switch {
	case n <= 16:
		return hashLen0to16(s)
	case n <= 32:
		return hashLen17to32(s)
	case n <= 64:
		return hashLen33to64(s)
	}

	x := fetch64(s)
	y := fetch64(s[n-16:]) ^ k1
	z := fetch64(s[n-56:]) ^ k0
	vFirst, vSecond := weakHashLen32WithSeedsBytes(s[n-64:], uint64(n), y)
	wFirst, wSecond := weakHashLen32WithSeedsBytes(s[n-32:], uint64(n)*k1, k0)
	z += shiftMix(vSecond) * k1
	x = rotate(z+x, 39) * k1
	y = rotate(y, 33) * k1

	rem := (n - 1) &^ 63
	p := s
	for rem != 0 {
		x = rotate(x+y+vFirst+fetch64(p[16:]), 37) * k1
		y = rotate(y+vSecond+fetch64(p[48:]), 42) * k1
		x ^= wSecond
		y ^= vFirst
		z = rotate(z^wFirst, 33)
		vFirst, vSecond = weakHashLen32WithSeedsBytes(p, vSecond*k1, x+wFirst)
		wFirst, wSecond = weakHashLen32WithSeedsBytes(p[32:], z+wSecond, y)
		z, x = x, z
		p = p[64:]
		rem -= 64
	}

	return hashLen16(hashLen16(vFirst, wFirst)+shiftMix(y)*k1+z, hashLen16(vSecond, wSecond)+x)
}
