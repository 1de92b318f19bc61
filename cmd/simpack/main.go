// Simpack converts the offline similarity build output into the binary
// artifact loaded by the storefront, and verifies existing artifacts.
//
//	simpack -i build.json -o similarity.simx [--zstd]
//	simpack --verify similarity.simx
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/niksmo/storefront/internal/similarity"
	"github.com/spf13/pflag"
)

const (
	inFlag     = "in"
	outFlag    = "out"
	zstdFlag   = "zstd"
	verifyFlag = "verify"
)

type flags struct {
	in, out, verify string
	compress        bool
}

func main() {
	f := getFlagsValues()

	var err error
	if f.verify != "" {
		err = verify(f.verify)
	} else {
		validateFlags(f)
		err = pack(f.in, f.out, f.compress)
	}
	if err != nil {
		slog.Error("simpack failed", "err", err)
		fallDown()
	}
}

func getFlagsValues() flags {
	in := pflag.StringP(inFlag, "i", "", "offline build JSON output")
	out := pflag.StringP(outFlag, "o", "", "artifact file to write")
	compress := pflag.Bool(zstdFlag, false, "compress the artifact payload")
	verifyPath := pflag.String(verifyFlag, "", "artifact file to verify")
	pflag.Parse()
	return flags{in: *in, out: *out, verify: *verifyPath, compress: *compress}
}

func validateFlags(f flags) {
	var errs []error

	if f.in == "" {
		errs = append(errs, fmt.Errorf("--%s flag: required", inFlag))
	}

	if f.out == "" {
		errs = append(errs, fmt.Errorf("--%s flag: required", outFlag))
	}

	if len(errs) != 0 {
		slog.Error("too few args", "err", errors.Join(errs...))
		fallDown()
	}
}

func pack(in, out string, compress bool) (err error) {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	a, err := similarity.ReadBuildOutput(src)
	if err != nil {
		return err
	}

	// The artifact is written beside its final name and renamed so a
	// watcher never reads a partial file.
	tmp := out + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = similarity.Encode(dst, a, similarity.EncodeOptions{Compress: compress}); err != nil {
		_ = dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, out); err != nil {
		return err
	}

	slog.Info("artifact written",
		"path", out, "buildVersion", a.BuildVersion,
		"nProducts", len(a.IDs), "zstd", compress,
	)
	return nil
}

func verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx, err := similarity.Decode(f)
	if err != nil {
		return err
	}

	slog.Info("artifact is valid",
		"path", path, "buildVersion", idx.BuildVersion(), "nProducts", idx.Len(),
	)
	return nil
}

func fallDown() {
	os.Exit(2)
}
