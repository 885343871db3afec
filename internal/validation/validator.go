package validation

import (
	"fmt"
	"strings"
	"sync/atomic"

	"vision/internal/errors"
	"vision/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Validator 请求参数验证器。失败只返回给调用方，由调用方统一记录
type Validator struct {
	logger     *logrus.Logger
	strictMode bool // 严格模式：混合大小写地址必须通过 EIP-55 校验
	rules      map[string]ValidationRule
	networks   map[string]struct{}
	failures   int64
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                  `json:"valid"`
	Errors   []*errors.VisionError `json:"errors,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
	DataType string                `json:"data_type"`
}

// Err 第一个错误，验证通过时为 nil
func (r *ValidationResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// NewValidator 创建验证器，networks 为空时不限制网络
func NewValidator(logger *logrus.Logger, strictMode bool, networks []string) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := &Validator{
		logger:     logger,
		strictMode: strictMode,
		rules:      make(map[string]ValidationRule),
		networks:   make(map[string]struct{}),
	}
	for _, n := range networks {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			v.networks[n] = struct{}{}
		}
	}

	v.registerDefaultRules()
	return v
}

// registerDefaultRules 注册默认验证规则
func (v *Validator) registerDefaultRules() {
	v.AddRule(NewAddressValidationRule(v.strictMode))
	v.AddRule(NewNetworkValidationRule(v.networks))
	v.AddRule(NewRenderResultValidationRule())
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateQuery 验证地址查询。network 为空时由调用方回落到默认网络
func (v *Validator) ValidateQuery(q models.AddressQuery) *ValidationResult {
	q.Address = strings.TrimSpace(q.Address)
	q.Network = strings.TrimSpace(q.Network)
	result := &ValidationResult{
		Valid:    true,
		DataType: "address_query",
		Errors:   make([]*errors.VisionError, 0),
		Warnings: make([]string, 0),
	}

	v.apply(result, "address", q.Address)
	if q.Network != "" {
		v.apply(result, "network", q.Network)
	}

	if result.Valid && !v.strictMode && hasMixedCase(q.Address) && !checksumMatches(q.Address) {
		result.Warnings = append(result.Warnings, "地址大小写不符合 EIP-55 校验和")
	}
	return result
}

// ValidateRenderResult 验证节点渲染输入，分数越界只产生警告
func (v *Validator) ValidateRenderResult(r *models.RenderResult) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		DataType: "render_result",
		Errors:   make([]*errors.VisionError, 0),
		Warnings: make([]string, 0),
	}
	if r == nil {
		return result
	}
	if r.Address != "" {
		v.apply(result, "address", r.Address)
	}
	if rule, ok := v.rules["render_result"].(*RenderResultValidationRule); ok {
		result.Warnings = append(result.Warnings, rule.Warnings(r)...)
	}
	return result
}

// apply 执行单条规则并把错误记录到结果中
func (v *Validator) apply(result *ValidationResult, name string, data interface{}) {
	rule, exists := v.rules[name]
	if !exists {
		return
	}
	err := rule.Validate(data)
	if err == nil {
		return
	}
	result.Valid = false
	atomic.AddInt64(&v.failures, 1)

	ve, ok := errors.AsVisionError(err)
	if !ok {
		ve = errors.WrapError(err, errors.ErrorTypeValidation, errors.SeverityLow,
			"VALIDATION_FAILED", fmt.Sprintf("%s 验证失败", name))
	}
	if ve.Component == "" {
		ve.Component = "validation"
	}
	result.Errors = append(result.Errors, ve)
}

// isValidAddress 0x 开头的 20 字节十六进制地址
func isValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return false
	}
	return common.IsHexAddress(addr)
}

func hasMixedCase(addr string) bool {
	body := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	return strings.ToLower(body) != body && strings.ToUpper(body) != body
}

// checksumMatches 按 EIP-55 比对大小写
func checksumMatches(addr string) bool {
	return common.HexToAddress(addr).Hex()[2:] == addr[2:]
}

// AddressValidationRule 地址验证规则
type AddressValidationRule struct {
	strict bool
}

func NewAddressValidationRule(strict bool) *AddressValidationRule {
	return &AddressValidationRule{strict: strict}
}

func (r *AddressValidationRule) Name() string {
	return "address"
}

func (r *AddressValidationRule) Description() string {
	return "EVM 地址验证规则"
}

func (r *AddressValidationRule) Validate(data interface{}) error {
	addr, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if addr == "" {
		return errors.NewVisionError(errors.ErrorTypeValidation, errors.SeverityLow,
			errors.ErrInvalidAddress.Code, "地址不能为空")
	}
	if !isValidAddress(addr) {
		return errors.NewVisionError(errors.ErrorTypeValidation, errors.SeverityLow,
			errors.ErrInvalidAddress.Code, fmt.Sprintf("地址格式无效: %s", addr)).
			WithContext("address", addr)
	}
	if r.strict && hasMixedCase(addr) && !checksumMatches(addr) {
		return errors.NewVisionError(errors.ErrorTypeValidation, errors.SeverityLow,
			errors.ErrInvalidAddress.Code, fmt.Sprintf("地址校验和错误: %s", addr)).
			WithContext("address", addr)
	}
	return nil
}

// NetworkValidationRule 网络白名单规则
type NetworkValidationRule struct {
	allowed map[string]struct{}
}

func NewNetworkValidationRule(allowed map[string]struct{}) *NetworkValidationRule {
	return &NetworkValidationRule{allowed: allowed}
}

func (r *NetworkValidationRule) Name() string {
	return "network"
}

func (r *NetworkValidationRule) Description() string {
	return "网络白名单验证规则"
}

func (r *NetworkValidationRule) Validate(data interface{}) error {
	network, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}
	if len(r.allowed) == 0 {
		return nil
	}
	if _, ok := r.allowed[strings.ToLower(network)]; !ok {
		return errors.NewVisionError(errors.ErrorTypeValidation, errors.SeverityLow,
			errors.ErrUnsupportedNetwork.Code, fmt.Sprintf("不支持的网络: %s", network)).
			WithContext("network", network)
	}
	return nil
}

// RenderResultValidationRule 渲染输入规则
type RenderResultValidationRule struct{}

func NewRenderResultValidationRule() *RenderResultValidationRule {
	return &RenderResultValidationRule{}
}

func (r *RenderResultValidationRule) Name() string {
	return "render_result"
}

func (r *RenderResultValidationRule) Description() string {
	return "节点渲染输入验证规则"
}

func (r *RenderResultValidationRule) Validate(data interface{}) error {
	if _, ok := data.(*models.RenderResult); !ok {
		return fmt.Errorf("数据类型不是渲染输入")
	}
	return nil
}

// Warnings 分数不在 [0,100] 内时给出警告
func (r *RenderResultValidationRule) Warnings(res *models.RenderResult) []string {
	var warnings []string
	check := func(name string, v *float64) {
		if v != nil && (*v < 0 || *v > 100) {
			warnings = append(warnings, fmt.Sprintf("%s 超出 0-100 范围: %v", name, *v))
		}
	}
	check("risk_score", res.RiskScore)
	check("score", res.Score)
	return warnings
}

// GetValidationStats 获取验证统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	return map[string]interface{}{
		"strict_mode":      v.strictMode,
		"registered_rules": len(v.rules),
		"networks":         len(v.networks),
		"failures":         atomic.LoadInt64(&v.failures),
	}
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode = strict
	v.AddRule(NewAddressValidationRule(strict))
	v.logger.Infof("验证器严格模式设置为: %t", strict)
}
