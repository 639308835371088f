package shader

import "fmt"

// Entry returns the standard 2D entry point. It derives (gx, gy) from
// global_invocation_id, returns early outside width x height, then runs
// call, which may refer to gx and gy.
//
// The workgroup size is taken from the local_size_* constants.
func Entry(width, height, call string) Fragment {
	return Fragment{
		Kind: KindEntry,
		Name: EntryPoint,
		Source: fmt.Sprintf(`@compute @workgroup_size(${%s}, ${%s}, ${%s})
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let gx = i32(gid.x);
    let gy = i32(gid.y);
    if (gx >= %s || gy >= %s) {
        return;
    }
    %s;
}`, LocalSizeX, LocalSizeY, LocalSizeZ, width, height, call),
	}
}

// Body wraps operator-specific source as a body fragment.
func Body(name, src string) Fragment {
	return Fragment{Kind: KindBody, Name: name, Source: src}
}

// Helper wraps shared source as a helper fragment.
func Helper(name, src string) Fragment {
	return Fragment{Kind: KindHelpers, Name: name, Source: src}
}
