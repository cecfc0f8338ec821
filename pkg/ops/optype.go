package ops

// OpType is the family of an operation: a node binds either an (OpType, opNum) pair looked up in the
// registry, or a custom op (OpTypeCustom).
//
// Numeric values match the ones used by serialized graphs.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeTransformFloat  OpType = 0
	OpTypeTransformSame   OpType = 1
	OpTypeTransformBool   OpType = 2
	OpTypeTransformStrict OpType = 3
	OpTypeReduce          OpType = 6
	OpTypeIndexReduce     OpType = 9
	OpTypeScalar          OpType = 10
	OpTypeBroadcast       OpType = 12
	OpTypePairwise        OpType = 14
	OpTypeShape           OpType = 18
	OpTypeRandom          OpType = 20
	OpTypeCustom          OpType = 21
	OpTypeGraph           OpType = 22
	OpTypeBoolean         OpType = 60
	OpTypeLogic           OpType = 119
)

// Operation numbers of the OpTypeLogic family. The executioner gives them control-flow semantics on top
// of what their kernels compute.
const (
	// LogicSwitch is the divergence point of a branch: input 0 is the boolean predicate, iArgs hold
	// the scope ids selected by true and by false.
	LogicSwitch = 30

	// LogicMerge forwards the last of its inputs that is available.
	LogicMerge = 60

	// LogicLoopCond publishes the predicate of a loop frame.
	LogicLoopCond = 70

	// LogicNextIteration carries a value to the next iteration of the loop: it is the source of the
	// back-edge into the frame's Merge (its rewind node).
	LogicNextIteration = 80

	// LogicExit takes a value out of a loop frame once its predicate is false.
	LogicExit = 90

	// LogicEnter brings a value into a loop frame, creating the frame on first use.
	LogicEnter = 100
)

// IsLogic returns whether opType/opNum is the given logic operation.
func IsLogic(opType OpType, opNum, logicOp int) bool {
	return opType == OpTypeLogic && opNum == logicOp
}
