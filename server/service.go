package server

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

type methodType struct {
	name      string // Wire name, e.g. "convertMoleculeIdentifier"
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// NewService 创建 service 并扫描所有合法方法
func NewService(rcvr any) (*service, error) {
	// 1. 用 reflect.TypeOf / ValueOf 获取类型和值
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	// 2. 用类型名作为 service name（只用于日志，方法名不带前缀）
	srv := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	// 3. 扫描方法
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("server: type %s has no exported methods of suitable type", srv.name)
	}
	return srv, nil
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// registerMethods 扫描 struct 的导出方法，过滤出符合 RPC 签名的:
//
//	func (r *T) Method(args *Args, reply *Reply) error
//	func (r *T) Method(ctx context.Context, args *Args, reply *Reply) error
//
// 方法以 lowerCamel 形式暴露：ConvertMoleculeIdentifier → convertMoleculeIdentifier
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}

		first := 1
		withCtx := false
		switch mt.NumIn() {
		case 3:
		case 4:
			if mt.In(1) != contextType {
				continue
			}
			first, withCtx = 2, true
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}

		name := lowerCamel(method.Name)
		s.method[name] = &methodType{
			name:      name,
			method:    method,
			withCtx:   withCtx,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
		}
	}
}

// call 通过反射调用方法
func (s *service) call(ctx context.Context, mType *methodType, argv, replyv reflect.Value) error {
	args := []reflect.Value{s.rcvr}
	if mType.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, argv, replyv)
	results := mType.method.Func.Call(args)
	if err, ok := results[0].Interface().(error); ok && err != nil {
		return err
	}
	return nil
}

var errEmptyName = errors.New("server: empty method name")

func lowerCamel(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}
