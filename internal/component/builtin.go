package component

// Built-in kind identifiers.
const (
	KindReader       = "reader"
	KindDataIO       = "dataio"
	KindIntersection = "intersection"
	KindFeatureScale = "feature_scale"
	KindHeteroLR     = "hetero_lr"
	KindHomoLR       = "homo_lr"
	KindEvaluation   = "evaluation"
)

func builtinKinds() []*Kind {
	return []*Kind{
		{
			Name:    KindReader,
			Outputs: []Port{{Name: "data", Type: PortData}},
			Schema: map[string]ParamType{
				"table": TypeObject,
			},
		},
		{
			Name: KindDataIO,
			Inputs: []Port{
				{Name: "data", Type: PortData, Required: true},
				{Name: "model", Type: PortModel},
			},
			Outputs: []Port{
				{Name: "data", Type: PortData},
				{Name: "model", Type: PortModel},
			},
			Defaults: Params{"input_format": "dense", "need_run": true},
			Schema: map[string]ParamType{
				"input_format":    TypeString,
				"output_format":   TypeString,
				"with_label":      TypeBool,
				"label_name":      TypeString,
				"label_type":      TypeString,
				"missing_fill":    TypeBool,
				"outlier_replace": TypeBool,
				"need_run":        TypeBool,
			},
		},
		{
			Name:     KindIntersection,
			Inputs:   []Port{{Name: "data", Type: PortData, Required: true}},
			Outputs:  []Port{{Name: "data", Type: PortData}},
			Defaults: Params{"intersect_method": "raw", "need_run": true},
			Schema: map[string]ParamType{
				"intersect_method":   TypeString,
				"sync_intersect_ids": TypeBool,
				"only_output_key":    TypeBool,
				"need_run":           TypeBool,
			},
		},
		{
			Name: KindFeatureScale,
			Inputs: []Port{
				{Name: "data", Type: PortData, Required: true},
				{Name: "model", Type: PortModel},
			},
			Outputs: []Port{
				{Name: "data", Type: PortData},
				{Name: "model", Type: PortModel},
			},
			Defaults: Params{"method": "min_max_scale", "mode": "normal", "need_run": true},
			Schema: map[string]ParamType{
				"method":            TypeString,
				"mode":              TypeString,
				"scale_col_indexes": TypeList,
				"need_run":          TypeBool,
			},
		},
		linearModel(KindHeteroLR, map[string]ParamType{
			"encrypted_mode_calculator_param": TypeObject,
			"stepwise_param":                  TypeObject,
		}),
		linearModel(KindHomoLR, nil),
		{
			Name:     KindEvaluation,
			Inputs:   []Port{{Name: "data", Type: PortData, Required: true}},
			Outputs:  []Port{{Name: "data", Type: PortData}},
			Defaults: Params{"eval_type": "binary", "need_run": true},
			Schema: map[string]ParamType{
				"eval_type": TypeString,
				"pos_label": TypeAny,
				"need_run":  TypeBool,
			},
		},
	}
}

func linearModel(name string, extra map[string]ParamType) *Kind {
	schema := map[string]ParamType{
		"penalty":          TypeString,
		"optimizer":        TypeString,
		"tol":              TypeNumber,
		"alpha":            TypeNumber,
		"max_iter":         TypeInteger,
		"early_stop":       TypeString,
		"batch_size":       TypeInteger,
		"learning_rate":    TypeNumber,
		"decay":            TypeNumber,
		"decay_sqrt":       TypeBool,
		"validation_freqs": TypeAny,
		"init_param":       TypeObject,
		"cv_param":         TypeObject,
		"need_run":         TypeBool,
	}
	for k, v := range extra {
		schema[k] = v
	}
	return &Kind{
		Name: name,
		Inputs: []Port{
			{Name: "train_data", Type: PortData, Required: true},
			{Name: "validate_data", Type: PortData},
			{Name: "model", Type: PortModel},
		},
		Outputs: []Port{
			{Name: "data", Type: PortData},
			{Name: "model", Type: PortModel},
		},
		Defaults: Params{"max_iter": 100, "tol": 0.0001, "need_run": true},
		Schema:   schema,
	}
}
