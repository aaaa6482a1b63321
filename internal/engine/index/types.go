package index

// Concrete opaque index kinds, one per indexed container named in spec
// §2/C1. Each wraps the generic Index so that, say, a NodeIndex can never be
// passed where an EdgeIndex is expected.

type NodeIndex struct{ Index }
type EdgeIndex struct{ Index }
type ParameterIndex struct{ Index }
type IndexParameterIndex struct{ Index }
type AggregatedNodeIndex struct{ Index }
type AggregatedStorageIndex struct{ Index }
type VirtualStorageIndex struct{ Index }
type MetricSetIndex struct{ Index }
type RecorderIndex struct{ Index }

func NewNodeIndex(i Index) NodeIndex                         { return NodeIndex{i} }
func NewEdgeIndex(i Index) EdgeIndex                         { return EdgeIndex{i} }
func NewParameterIndex(i Index) ParameterIndex               { return ParameterIndex{i} }
func NewIndexParameterIndex(i Index) IndexParameterIndex     { return IndexParameterIndex{i} }
func NewAggregatedNodeIndex(i Index) AggregatedNodeIndex     { return AggregatedNodeIndex{i} }
func NewAggregatedStorageIndex(i Index) AggregatedStorageIndex { return AggregatedStorageIndex{i} }
func NewVirtualStorageIndex(i Index) VirtualStorageIndex     { return VirtualStorageIndex{i} }
func NewMetricSetIndex(i Index) MetricSetIndex               { return MetricSetIndex{i} }
func NewRecorderIndex(i Index) RecorderIndex                 { return RecorderIndex{i} }
