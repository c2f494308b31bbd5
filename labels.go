package vehiclecount

import "sort"

// vehicleClasses maps the COCO dataset class ID's of the vehicle types we
// count to their labels.  The detection model is trained on the full COCO
// label set but only these classes are kept during post processing.
var vehicleClasses = map[int]string{
	2: "car",
	3: "motorcycle",
	5: "bus",
	7: "truck",
}

// IsVehicleClass returns true if the given class ID is one of the vehicle
// classes counted by the system
func IsVehicleClass(id int) bool {
	_, ok := vehicleClasses[id]
	return ok
}

// ClassName returns the label for the given vehicle class ID.  The second
// return value is false when the ID is not a vehicle class.
func ClassName(id int) (string, bool) {
	name, ok := vehicleClasses[id]
	return name, ok
}

// ClassNames returns all vehicle class labels in class ID order.  Used for
// pre-populating per class counters at zero.
func ClassNames() []string {

	ids := make([]int, 0, len(vehicleClasses))

	for id := range vehicleClasses {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	names := make([]string, len(ids))

	for i, id := range ids {
		names[i] = vehicleClasses[id]
	}

	return names
}
