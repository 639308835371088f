// Package fusion provides two-input transition operators.
//
// A fusion blends a "from" image (src1) into a "to" image (src2) as
// progress runs from 0 to 1. Both sources are sampled in normalized
// coordinates, so they may differ in size; the destination is described
// as the src1 size in 4-channel Int8 ABGR.
//
// Like the filter operators, a fusion whose construction failed reports
// Valid() == false and every Filter call returns
// gpufilter.ErrInvalidOperator without touching its arguments.
package fusion
