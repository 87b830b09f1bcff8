package demo

import (
	"context"
	"fmt"
	"io"
	"strings"

	client "github.com/hanpama/graphserve/internal/client"
)

const (
	helloWorldQuery = `query HelloWorldQuery($name: String) { helloWorld(name: $name) }`

	retrieveObjectQuery = `query RetrieveObjectQuery($id: Int!) {
  retrieveBasicObject(id: $id) { id name }
}`

	addObjectMutation = `mutation AddObjectMutation($newObject: BasicObjectInput!) {
  addBasicObject(newObject: $newObject) { id name }
}`

	updateObjectMutation = `mutation UpdateObjectMutation($updatedObject: BasicObjectInput!) {
  updateBasicObject(updatedObject: $updatedObject) { id name }
}`

	exampleQuery = `query ExampleQuery($simpleCriteria: SimpleArgumentInput) {
  interfaceQuery { __typename type sound ... on Dog { barkVolume } ... on Cat { whiskers } }
  unionQuery { __typename ... on LeftHand { field } ... on RightHand { property } }
  enumQuery
  listQuery { id name }
  filteredNumbers(simpleCriteria: $simpleCriteria)
}`
)

// RunClient walks through the demo operations against a running server and
// prints what comes back to w.
func RunClient(ctx context.Context, c *client.Client, w io.Writer) error {
	fmt.Fprintln(w, "HelloWorld examples")
	var hello struct{ HelloWorld string }
	if err := do(ctx, c, client.Request{Query: helloWorldQuery}, &hello); err != nil {
		return err
	}
	fmt.Fprintf(w, "\tquery without parameters result: %s\n", hello.HelloWorld)
	if err := do(ctx, c, client.Request{Query: helloWorldQuery, Variables: map[string]any{"name": "Dariusz"}}, &hello); err != nil {
		return err
	}
	fmt.Fprintf(w, "\tquery with parameters result: %s\n", hello.HelloWorld)

	fmt.Fprintln(w, "simple mutation examples")
	var retrieved struct{ RetrieveBasicObject *BasicObject }
	if err := do(ctx, c, client.Request{Query: retrieveObjectQuery, Variables: map[string]any{"id": 1}}, &retrieved); err != nil {
		return err
	}
	if retrieved.RetrieveBasicObject != nil {
		// a previous run against the same server
		fmt.Fprintf(w, "\tretrieve existing object: %s\n", describe(retrieved.RetrieveBasicObject))
	} else {
		fmt.Fprintf(w, "\tretrieve non existent object: %s\n", describe(retrieved.RetrieveBasicObject))

		var added struct{ AddBasicObject *BasicObject }
		newObject := map[string]any{"newObject": map[string]any{"id": 1, "name": "first"}}
		if err := do(ctx, c, client.Request{Query: addObjectMutation, Variables: newObject}, &added); err != nil {
			return err
		}
		fmt.Fprintf(w, "\tadd new object: %s\n", describe(added.AddBasicObject))
	}

	var updated struct{ UpdateBasicObject *BasicObject }
	updatedObject := map[string]any{"updatedObject": map[string]any{"id": 1, "name": "updated"}}
	if err := do(ctx, c, client.Request{Query: updateObjectMutation, Variables: updatedObject}, &updated); err != nil {
		return err
	}
	fmt.Fprintf(w, "\tupdate new object: %s\n", describe(updated.UpdateBasicObject))

	fmt.Fprintln(w, "additional examples")
	var example struct {
		InterfaceQuery  map[string]any
		UnionQuery      map[string]any
		EnumQuery       string
		ListQuery       []BasicObject
		FilteredNumbers []float64
	}
	criteria := map[string]any{"simpleCriteria": map[string]any{"max": 1.0}}
	if err := do(ctx, c, client.Request{Query: exampleQuery, Variables: criteria}, &example); err != nil {
		return err
	}
	names := make([]string, len(example.ListQuery))
	for i, o := range example.ListQuery {
		names[i] = o.Name
	}
	fmt.Fprintf(w, "\tretrieved interface: %v\n", example.InterfaceQuery)
	fmt.Fprintf(w, "\tretrieved union: %v\n", example.UnionQuery)
	fmt.Fprintf(w, "\tretrieved enum: %s\n", example.EnumQuery)
	fmt.Fprintf(w, "\tretrieved example list: [%s]\n", strings.Join(names, ", "))
	fmt.Fprintf(w, "\tfiltered numbers: %v\n", example.FilteredNumbers)

	fmt.Fprintln(w, "batch example")
	results, err := c.DoBatch(ctx, []client.Request{
		{Query: helloWorldQuery, Variables: map[string]any{"name": "batch"}},
		{Query: retrieveObjectQuery, Variables: map[string]any{"id": 1}},
	})
	if err != nil {
		return err
	}
	for i, res := range results {
		if err := firstError(res); err != nil {
			return fmt.Errorf("batch operation %d: %w", i, err)
		}
		fmt.Fprintf(w, "\t[%d] %s\n", i, res.Data)
	}
	return nil
}

func do(ctx context.Context, c *client.Client, req client.Request, out any) error {
	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := firstError(res); err != nil {
		return err
	}
	return res.Decode(out)
}

func firstError(res *client.Response) error {
	if len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return nil
}

func describe(o *BasicObject) string {
	if o == nil {
		return "null"
	}
	return fmt.Sprintf("{id: %d, name: %s}", o.ID, o.Name)
}
