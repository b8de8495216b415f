// Package model implements the UPnP device data model.
//
// # Device Model Hierarchy
//
// UPnP devices form a tree:
//
//	Device (root, uuid:...)
//	├── Service (ContentDirectory)
//	│   ├── Actions: Browse, Search, ...
//	│   └── State variables: SystemUpdateID, A_ARG_TYPE_ObjectID, ...
//	├── Service (ConnectionManager)
//	└── Device (embedded)
//	    └── ...
//
// A Device owns its embedded devices and services. There are no back
// pointers from a child to its parent; the registry keeps a child to parent
// lookup table instead.
//
// # Actions and Arguments
//
// Arguments carry no type of their own. Each names a related state variable
// whose data type, allowed value list and allowed range apply to it.
//
// # State Changes
//
// State variables change only through their Service. Service.Update stages
// changes in a Tx and applies them together; all evented variables that
// changed are reported to ServiceSubscribers in one call. Updates on one
// service are serialized, so subscribers see changes in a consistent order.
package model
