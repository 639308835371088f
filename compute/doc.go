// Package compute is the device layer of gpufilter: it selects a backend,
// opens logical devices, pools their memory, builds compute pipelines and
// records and submits work.
//
// The lifecycle is explicit:
//
//	rt, err := compute.Open()                 // process-wide state
//	dev, err := rt.Acquire(compute.DefaultDevice)
//	pair, err := dev.AcquireAllocators()      // blob + staging
//	defer pair.Release()
//
//	p := compute.NewPipeline(dev)
//	p.SetOptimalLocalSize(8, 8, 1)
//	err = p.Create(prog, nil, 2)
//
//	cmd := compute.NewCommand(dev, pair)
//	cmd.RecordClone(src, in, compute.CloneOptions{})
//	cmd.RecordPipeline(p, []gpufilter.Matrix{in, out}, params, out.Geometry())
//	cmd.RecordClone(out, dst, compute.CloneOptions{})
//	err = cmd.SubmitAndWait(ctx)
//	cmd.Reset()
//
// Two kinds of backend exist. Hardware backends (vulkan, metal, dx12, gles,
// and the wgpu software interpreter) go through gogpu/wgpu/hal. The host
// backend runs each program's Go kernel on a worker pool and is always
// available; it is the reference implementation used by tests.
package compute
