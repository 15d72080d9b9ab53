// Copyright 2025 The CoorAgent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

// Flavor selects which graph shape a run uses.
type Flavor string

const (
	// FlavorWorkflow is the full graph with the proxy loop.
	FlavorWorkflow Flavor = "agent_workflow"
	// FlavorFactory is the reduced graph that ends after agent creation.
	FlavorFactory Flavor = "agent_factory"
)

// ValidFlavor reports whether f names a known graph shape.
func ValidFlavor(f string) bool {
	return Flavor(f) == FlavorWorkflow || Flavor(f) == FlavorFactory
}

// Build assembles the controller for the given flavor.
func Build(flavor Flavor, services *Services) *Controller {
	nodes := map[string]NodeFunc{
		NodeCoordinator: CoordinatorNode,
		NodePlanner:     PlannerNode,
	}
	switch flavor {
	case FlavorFactory:
		nodes[NodePublisher] = NewPublisherNode(true)
		nodes[NodeFactory] = NewFactoryNode(true)
	default:
		nodes[NodePublisher] = NewPublisherNode(false)
		nodes[NodeFactory] = NewFactoryNode(false)
		nodes[NodeProxy] = ProxyNode
	}
	return NewController(services, nodes, NodeCoordinator)
}
