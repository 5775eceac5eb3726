package operation

// Category 用于诊断端分组展示操作。
type Category string

const (
	CategoryModel   Category = "model"
	CategoryGarment Category = "garment"
	CategoryPose    Category = "pose"
	CategoryColor   Category = "color"
	CategoryStyling Category = "styling"
)

// ParamKind 描述参数的取值类型。
type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamBool   ParamKind = "bool"
)

// ParamSpec 记录一个操作参数的元数据，供诊断端与表单解析使用。
type ParamSpec struct {
	Name        string
	Kind        ParamKind
	Default     string
	Description string
}

// Plan 是一次操作的执行计划。Summary 会进入缓存键与指纹；Passthrough 表示
// 参数不足以构成有效请求，直接返回第一张输入图而不调用远程生成。
type Plan struct {
	Prompt      string
	Summary     string
	Passthrough bool
}

// BuildFunc 根据请求参数生成执行计划，参数非法时返回 ParamError。
type BuildFunc func(Params) (Plan, error)

// Definition 记录一个操作的静态信息。
type Definition struct {
	Key         string
	Description string
	Category    Category
	// ImageSlots 按顺序列出输入图像的名称，顺序即发送给模型的顺序。
	ImageSlots []string
	Params     []ParamSpec
	Build      BuildFunc
}

// ParamNames 返回参数名列表。
func (d Definition) ParamNames() []string {
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
	}
	return names
}
