package benchmark

import (
	"fmt"
	"testing"

	"github.com/websift/dedup-engine/internal/dedup/bloom"
)

func BenchmarkBloomAdd(b *testing.B) {
	f, err := bloom.New(1_000_000, 0.01)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.Add(fmt.Sprintf("http://site-%d.onion/page/%d", i%1000, i))
	}
}

func BenchmarkBloomContains(b *testing.B) {
	f, err := bloom.New(1_000_000, 0.01)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 100_000; i++ {
		f.Add(fmt.Sprintf("http://site-%d.onion/page/%d", i%1000, i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Contains(fmt.Sprintf("http://site-%d.onion/page/%d", i%1000, i))
	}
}

func BenchmarkBloomSerialize(b *testing.B) {
	sizes := []int{10_000, 100_000, 1_000_000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("capacity_%d", size), func(b *testing.B) {
			f, err := bloom.New(size, 0.01)
			if err != nil {
				b.Fatal(err)
			}
			for i := 0; i < size/10; i++ {
				f.Add(fmt.Sprintf("url-%d", i))
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				data, err := f.Serialize()
				if err != nil {
					b.Fatal(err)
				}
				b.SetBytes(int64(len(data)))
			}
		})
	}
}
