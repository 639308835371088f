// Command gpufilter runs the compute filter operators on image files.
//
// Examples:
//
//	gpufilter -op hue -hue 120 -in photo.png -out rotated.png
//	gpufilter -op filter2d -kernel box -radius 3 -in photo.jpg -out blur.png
//	gpufilter -op cie -mode LUV -in photo.png -out plot.png
//	gpufilter -op squeeze -in a.png -in2 b.png -progress 0.3 -out mid.png
//	gpufilter -preset fade.toml -progress 0.8
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpufilter"
	"github.com/gogpu/gpufilter/compute"
)

func main() {
	o, err := parseOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := run(o, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(o options, w io.Writer) error {
	if o.Verbose {
		gpufilter.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	if o.ListBackends {
		for _, name := range compute.Backends() {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	rt, err := compute.Open(compute.WithBackend(o.Backend))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	src, err := loadInput(o.Input, o.Width, o.Height, false)
	if err != nil {
		return err
	}

	start := time.Now()
	dst, err := apply(rt, o, src)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := saveImage(o.Output, dst); err != nil {
		return err
	}
	report(w, rt, o, src.Geometry(), dst.Geometry(), elapsed)
	return nil
}

// report prints a one-line summary with locale-aware number grouping.
func report(w io.Writer, rt *compute.Runtime, o options, in, out gpufilter.Geometry, elapsed time.Duration) {
	p := message.NewPrinter(language.English)
	adapter := "?"
	if infos := rt.Adapters(); len(infos) > 0 {
		adapter = infos[0].Name
		if o.GPU >= 0 && o.GPU < len(infos) {
			adapter = infos[o.GPU].Name
		}
	}
	p.Fprintf(w, "%s on %s (%s): %d pixels in, %d pixels out, %v -> %s\n",
		o.Op, adapter, rt.Backend(), in.W*in.H, out.W*out.H, elapsed.Round(time.Microsecond), o.Output)
}
