/*
vc-yov5n-ver2 implements the frame processing core of a vehicle counting
system.  It takes the raw output tensor of a YOLOv5n style object detection
model and produces stable vehicle tracks, filtered to a user defined region
of interest, and counted as they cross user defined lines.

Inference itself and video capture are external to this module, the pipeline
consumes one raw detection tensor plus the frame dimensions per call.

See example code and usage in the example subdirectory.
*/
package vehiclecount
